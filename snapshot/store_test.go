package snapshot

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestSaveUpdatesLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = fixedClock(base, base.Add(1500*time.Millisecond))

	first, err := s.Save([]byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := s.Save([]byte(`{"n":2}`))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first != "2026-03-01T12:00:00.000000000Z" {
		t.Fatalf("name got=%q", first)
	}

	target, err := s.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if target != second {
		t.Fatalf("latest got=%q want=%q", target, second)
	}
	data, err := s.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != `{"n":2}` {
		t.Fatalf("latest data got=%s", data)
	}
	data, err = s.Load(first)
	if err != nil {
		t.Fatalf("Load(%s): %v", first, err)
	}
	if string(data) != `{"n":1}` {
		t.Fatalf("first data got=%s", data)
	}

	if _, err := os.Lstat(filepath.Join(dir, latestNext)); !os.IsNotExist(err) {
		t.Fatalf("%s left behind: %v", latestNext, err)
	}
}

func TestListSkipsLinksAndStrays(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = fixedClock(base.Add(time.Hour), base)

	later, _ := s.Save([]byte("{}"))
	earlier, _ := s.Save([]byte("{}"))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tmpPrefix+"123"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != earlier || names[1] != later {
		t.Fatalf("List got=%v want=[%s %s]", names, earlier, later)
	}
}

func TestLoadErrors(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Load(""); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing latest err=%v want fs.ErrNotExist", err)
	}
	for _, name := range []string{"../etc/passwd", "a/b", ".."} {
		if _, err := s.Load(name); err == nil {
			t.Fatalf("Load(%q) should fail", name)
		}
	}
}

func TestOpenRejectsEmptyDir(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("Open(\"\") should fail")
	}
}
