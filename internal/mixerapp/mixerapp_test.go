package mixerapp

import (
	"bytes"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/algo-mixer/mixer"
	"github.com/cwbudde/algo-mixer/transport"
)

func mustKey(t *testing.T, path string) mixer.Key {
	t.Helper()
	k, err := mixer.ParseKey(path)
	if err != nil {
		t.Fatalf("ParseKey(%q): %v", path, err)
	}
	return k
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixer.json")
	if err := os.WriteFile(path, []byte(`{"sample_rate": 44100, "snapshot_dir": "snaps"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.Register(fs)
	if err := fs.Parse([]string{"-config", path, "-sample-rate", "96000", "-poll", "10ms"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, err := f.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.SampleRate != 96000 || cfg.PollInterval != 10*time.Millisecond {
		t.Fatalf("overrides not applied: rate=%d poll=%v", cfg.SampleRate, cfg.PollInterval)
	}
	if want := filepath.Join(dir, "snaps"); cfg.SnapshotDir != want {
		t.Fatalf("snapshot dir got=%q want=%q", cfg.SnapshotDir, want)
	}

	bad := Flags{Transport: "usb"}
	if _, err := bad.Config(); err == nil {
		t.Fatalf("expected error for unknown transport")
	}
}

func TestStartFallsBackToDefaultsAndPersists(t *testing.T) {
	f := Flags{SnapshotDir: t.TempDir()}
	cfg, err := f.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	var logs bytes.Buffer
	app, err := Start(cfg, log.New(&logs, "", 0))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(logs.String(), "no snapshot found") {
		t.Fatalf("startup log got=%q", logs.String())
	}
	if _, ok := app.Transport.(*transport.Dummy); !ok {
		t.Fatalf("transport got=%T want *transport.Dummy", app.Transport)
	}
	if app.Controller.Image().Generation() != 1 {
		t.Fatalf("state not dumped at startup")
	}

	if err := app.Controller.Set("b0/lvl", "-4"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := app.Controller.SaveSnapshot(); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	logs.Reset()
	again, err := Start(cfg, log.New(&logs, "", 0))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(logs.String(), "snapshot loaded") {
		t.Fatalf("restart log got=%q", logs.String())
	}
	if v, _ := again.Controller.Get(mustKey(t, "b0/lvl")); v.String() != "-4" {
		t.Fatalf("restored master level got=%s want=-4", v)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-200, -180, 12) != -180 || Clamp(20, -180, 12) != 12 || Clamp(3, -180, 12) != 3 {
		t.Fatalf("clamp out of range")
	}
}
