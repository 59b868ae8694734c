package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/algo-mixer/controller"
	"github.com/cwbudde/algo-mixer/mixer"
	"github.com/cwbudde/algo-mixer/snapshot"
)

var errQuit = errors.New("quit")

const usage = "commands: set <path> <value> | get <path> | meter | save | load [name] | list | dump | quit"

// dispatcher executes one line-protocol command at a time. It is the only
// writer of the controller's state.
type dispatcher struct {
	c     *controller.Controller
	store *snapshot.Store
}

// exec runs line and returns the reply. errQuit ends the session.
func (d *dispatcher) exec(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "set":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: set <path> <value>")
		}
		// Text values may contain spaces.
		rest := strings.TrimSpace(line)[len(fields[0]):]
		raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), args[0]))
		if err := d.c.Set(args[0], raw); err != nil {
			return "", err
		}
		return "ok", nil

	case "get":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: get <path>")
		}
		k, err := mixer.ParseKey(args[0])
		if err != nil {
			return "", err
		}
		v, ok := d.c.Get(k)
		if !ok {
			return "", fmt.Errorf("%w: %s", mixer.ErrUnknownControl, k)
		}
		return fmt.Sprintf("%s = %s", k, v), nil

	case "meter":
		b, err := json.Marshal(d.c.Meter())
		if err != nil {
			return "", err
		}
		return string(b), nil

	case "save":
		name, err := d.c.SaveSnapshot()
		if err != nil {
			return "", err
		}
		return "saved " + name, nil

	case "load":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		if err := d.c.LoadSnapshot(name); err != nil {
			return "", err
		}
		if name == "" {
			name = snapshot.Latest
		}
		return "loaded " + name, nil

	case "list":
		if d.store == nil {
			return "", fmt.Errorf("no snapshot store configured")
		}
		names, err := d.store.List()
		if err != nil {
			return "", err
		}
		if len(names) == 0 {
			return "no snapshots", nil
		}
		if latest, err := d.store.Resolve(); err == nil {
			for i, name := range names {
				if name == latest {
					names[i] += " (" + snapshot.Latest + ")"
				}
			}
		}
		return strings.Join(names, "\n"), nil

	case "dump":
		if err := d.c.DumpStateToMixer(); err != nil {
			return "", err
		}
		return fmt.Sprintf("dumped generation %d", d.c.Image().Generation()), nil

	case "quit", "exit":
		return "", errQuit

	case "help":
		return usage, nil
	}
	return "", fmt.Errorf("unknown command %q (%s)", cmd, usage)
}
