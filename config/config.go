// Package config loads mixer deployment settings from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/algo-mixer/dsp"
	"github.com/cwbudde/algo-mixer/fixedpoint"
	"github.com/cwbudde/algo-mixer/topology"
	"github.com/cwbudde/algo-mixer/translate"
	"github.com/cwbudde/algo-mixer/transport"
)

// Config is a complete deployment description.
type Config struct {
	Topology     topology.Params
	SampleRate   int
	PanLawDB     float64
	Word         fixedpoint.Format
	Transport    string
	DevicePath   string
	PollInterval time.Duration
	SnapshotDir  string

	// Inputs maps channel numbers to WAV files for offline rendering.
	Inputs map[int]string
}

// Default is the reference deployment with the dummy transport.
func Default() *Config {
	return &Config{
		Topology:     topology.DefaultParams(),
		SampleRate:   48000,
		PanLawDB:     dsp.DefaultPanLawDB,
		Word:         fixedpoint.Param,
		Transport:    transport.KindDummy,
		PollInterval: transport.DefaultPollInterval,
		SnapshotDir:  "snapshots",
	}
}

// File is the JSON schema. Absent fields keep their defaults.
type File struct {
	NumCores             *int              `json:"num_cores"`
	NumChannelsPerCore   *int              `json:"num_channels_per_core"`
	NumBussesPerCore     *int              `json:"num_busses_per_core"`
	NumBiquadsPerChannel *int              `json:"num_biquads_per_channel"`
	NumBiquadsPerBus     *int              `json:"num_biquads_per_bus"`
	WordsPerCore         *int              `json:"words_per_core"`
	BusMapping           [][]int           `json:"bus_mapping"`
	SampleRate           *int              `json:"sample_rate"`
	PanLawDB             *float64          `json:"pan_law_db"`
	WordBits             *int              `json:"word_bits"`
	WordFrac             *int              `json:"word_frac"`
	Transport            string            `json:"transport"`
	DevicePath           string            `json:"device_path"`
	PollIntervalMS       *int              `json:"poll_interval_ms"`
	SnapshotDir          string            `json:"snapshot_dir"`
	Inputs               map[string]string `json:"inputs"`
}

// LoadJSON loads a config file and applies it on top of Default. Relative
// paths are resolved against the file's directory.
func LoadJSON(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	c := Default()
	if err := ApplyFile(c, &f); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(base, p))
	}
	if f.SnapshotDir != "" {
		c.SnapshotDir = resolve(c.SnapshotDir)
	}
	for ch, p := range c.Inputs {
		c.Inputs[ch] = resolve(p)
	}
	return c, nil
}

// ApplyFile applies a parsed file onto an existing config.
func ApplyFile(dst *Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}

	positive := []struct {
		name string
		src  *int
		dst  *int
	}{
		{"num_cores", f.NumCores, &dst.Topology.NumCores},
		{"num_channels_per_core", f.NumChannelsPerCore, &dst.Topology.ChannelsPerCore},
		{"num_busses_per_core", f.NumBussesPerCore, &dst.Topology.BussesPerCore},
		{"num_biquads_per_channel", f.NumBiquadsPerChannel, &dst.Topology.BiquadsPerChannel},
		{"num_biquads_per_bus", f.NumBiquadsPerBus, &dst.Topology.BiquadsPerBus},
		{"words_per_core", f.WordsPerCore, &dst.Topology.WordsPerCore},
		{"sample_rate", f.SampleRate, &dst.SampleRate},
	}
	for _, p := range positive {
		if p.src == nil {
			continue
		}
		if *p.src <= 0 {
			return fmt.Errorf("%s must be > 0", p.name)
		}
		*p.dst = *p.src
	}
	if f.BusMapping != nil {
		dst.Topology.BusMapping = f.BusMapping
	}
	if f.PanLawDB != nil {
		if *f.PanLawDB <= 0 {
			return fmt.Errorf("pan_law_db must be > 0")
		}
		dst.PanLawDB = *f.PanLawDB
	}
	if f.WordBits != nil {
		dst.Word.Bits = *f.WordBits
	}
	if f.WordFrac != nil {
		dst.Word.Frac = *f.WordFrac
	}
	if err := dst.Word.Validate(); err != nil {
		return fmt.Errorf("word_bits/word_frac: %w", err)
	}
	if f.Transport != "" {
		kind := strings.ToLower(strings.TrimSpace(f.Transport))
		if kind != transport.KindDummy && kind != transport.KindDevice {
			return fmt.Errorf("transport must be %q or %q", transport.KindDummy, transport.KindDevice)
		}
		dst.Transport = kind
	}
	if f.DevicePath != "" {
		dst.DevicePath = strings.TrimSpace(f.DevicePath)
	}
	if f.PollIntervalMS != nil {
		if *f.PollIntervalMS <= 0 {
			return fmt.Errorf("poll_interval_ms must be > 0")
		}
		dst.PollInterval = time.Duration(*f.PollIntervalMS) * time.Millisecond
	}
	if f.SnapshotDir != "" {
		dst.SnapshotDir = strings.TrimSpace(f.SnapshotDir)
	}

	if len(f.Inputs) == 0 {
		return nil
	}
	if dst.Inputs == nil {
		dst.Inputs = make(map[int]string)
	}
	keys := make([]string, 0, len(f.Inputs))
	for k := range f.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ch, err := strconv.Atoi(k)
		if err != nil || ch < 0 {
			return fmt.Errorf("invalid inputs key %q (expected channel number)", k)
		}
		dst.Inputs[ch] = strings.TrimSpace(f.Inputs[k])
	}
	return nil
}

// BuildTopology validates the topology settings.
func (c *Config) BuildTopology() (*topology.Topology, error) {
	t, err := topology.New(c.Topology)
	if err != nil {
		return nil, err
	}
	for ch := range c.Inputs {
		if ch >= t.NumChannels() {
			return nil, fmt.Errorf("inputs: channel %d out of range (have %d)", ch, t.NumChannels())
		}
	}
	return t, nil
}

// TranslateOptions are the translation constants of this deployment.
func (c *Config) TranslateOptions() translate.Options {
	return translate.Options{
		SampleRate: float64(c.SampleRate),
		PanLaw:     dsp.NewPanLaw(c.PanLawDB),
	}
}

// TransportConfig selects the transport of this deployment.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Kind:         c.Transport,
		DevicePath:   c.DevicePath,
		PollInterval: c.PollInterval,
	}
}
