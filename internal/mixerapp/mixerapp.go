// Package mixerapp wires a configured controller, snapshot store and
// transport for the mixer commands.
package mixerapp

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cwbudde/algo-mixer/config"
	"github.com/cwbudde/algo-mixer/controller"
	"github.com/cwbudde/algo-mixer/snapshot"
	"github.com/cwbudde/algo-mixer/topology"
	"github.com/cwbudde/algo-mixer/transport"
)

// Flags are the command-line settings shared by the mixer commands.
// Overrides left at their zero value keep the config file's setting.
type Flags struct {
	ConfigPath   string
	Transport    string
	DevicePath   string
	SnapshotDir  string
	SampleRate   int
	PollInterval time.Duration
}

// Register adds the shared flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "Mixer config JSON file path (defaults when empty)")
	fs.StringVar(&f.Transport, "transport", "", "Transport override: dummy or device")
	fs.StringVar(&f.DevicePath, "device", "", "Device path override for the device transport")
	fs.StringVar(&f.SnapshotDir, "snapshots", "", "Snapshot directory override")
	fs.IntVar(&f.SampleRate, "sample-rate", 0, "Sample rate override in Hz")
	fs.DurationVar(&f.PollInterval, "poll", 0, "Transport poll interval override")
}

// Config loads the config file, if any, and applies the overrides.
func (f *Flags) Config() (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigPath != "" {
		var err error
		cfg, err = config.LoadJSON(f.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config %q: %w", f.ConfigPath, err)
		}
	}
	if f.Transport != "" {
		kind := strings.ToLower(strings.TrimSpace(f.Transport))
		if kind != transport.KindDummy && kind != transport.KindDevice {
			return nil, fmt.Errorf("transport must be %q or %q", transport.KindDummy, transport.KindDevice)
		}
		cfg.Transport = kind
	}
	if f.DevicePath != "" {
		cfg.DevicePath = f.DevicePath
	}
	if f.SnapshotDir != "" {
		cfg.SnapshotDir = f.SnapshotDir
	}
	if f.SampleRate < 0 {
		return nil, fmt.Errorf("sample rate must be > 0")
	}
	if f.SampleRate > 0 {
		cfg.SampleRate = f.SampleRate
	}
	if f.PollInterval < 0 {
		return nil, fmt.Errorf("poll interval must be > 0")
	}
	if f.PollInterval > 0 {
		cfg.PollInterval = f.PollInterval
	}
	return cfg, nil
}

// App is a started mixer: state translated into the image and a transport
// ready to run.
type App struct {
	Config     *config.Config
	Topology   *topology.Topology
	Controller *controller.Controller
	Store      *snapshot.Store
	Transport  transport.Transport
}

// Start builds the controller for cfg, restores the latest snapshot (or the
// defaults) and opens the configured transport. An empty snapshot directory
// disables persistence.
func Start(cfg *config.Config, logger *log.Logger) (*App, error) {
	topo, err := cfg.BuildTopology()
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	opts := []controller.Option{controller.WithTranslateOptions(cfg.TranslateOptions())}
	if logger != nil {
		opts = append(opts, controller.WithLogger(logger))
	}

	var store *snapshot.Store
	if cfg.SnapshotDir != "" {
		store, err = snapshot.Open(cfg.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		opts = append(opts, controller.WithSnapshotStore(store))
	}

	c, err := controller.New(topo, cfg.Word, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Startup(); err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}

	tr, err := transport.Open(cfg.TransportConfig(), c.Image(), topo, c)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:     cfg,
		Topology:   topo,
		Controller: c,
		Store:      store,
		Transport:  tr,
	}, nil
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
