// Package snapshot persists mixer state documents as timestamped files in a
// directory, with a "latest" symlink naming the newest one.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// Latest is the symlink that always names the newest snapshot.
	Latest = "latest"

	latestNext = "latest-next"
	tmpPrefix  = ".tmp-"

	// Fixed-width UTC timestamps sort lexically in time order.
	nameLayout = "2006-01-02T15:04:05.000000000Z"
)

// Store reads and writes snapshots under one directory.
type Store struct {
	dir string
	now func() time.Time
}

// Open returns a store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir is the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// Save writes data as a new snapshot and points Latest at it. Readers never
// observe a half-written file or a dangling Latest: the file is written
// under a temporary name and renamed, and the link is replaced the same way.
func (s *Store) Save(data []byte) (string, error) {
	name := s.now().UTC().Format(nameLayout)

	tmp, err := os.CreateTemp(s.dir, tmpPrefix)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("store snapshot: %w", err)
	}

	next := filepath.Join(s.dir, latestNext)
	if err := os.Remove(next); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove stale %s: %w", latestNext, err)
	}
	if err := os.Symlink(name, next); err != nil {
		return "", fmt.Errorf("link snapshot: %w", err)
	}
	if err := os.Rename(next, filepath.Join(s.dir, Latest)); err != nil {
		return "", fmt.Errorf("update %s: %w", Latest, err)
	}
	return name, nil
}

// Load reads the snapshot called name; an empty name means Latest. Missing
// snapshots return an error matching fs.ErrNotExist.
func (s *Store) Load(name string) ([]byte, error) {
	if name == "" {
		name = Latest
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	return data, nil
}

// Resolve returns the snapshot Latest points to.
func (s *Store) Resolve() (string, error) {
	target, err := os.Readlink(filepath.Join(s.dir, Latest))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", Latest, err)
	}
	return target, nil
}

// List returns the stored snapshot names, oldest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		if _, err := time.Parse(nameLayout, name); err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func checkName(name string) error {
	if name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsRune(name, os.PathSeparator) {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}
