package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-mixer/controller"
	"github.com/cwbudde/algo-mixer/internal/audioio"
	"github.com/cwbudde/algo-mixer/internal/mixerapp"
	"github.com/cwbudde/algo-mixer/sim"
	"github.com/cwbudde/algo-mixer/snapshot"
	"github.com/cwbudde/algo-mixer/topology"
)

// setFlags collects repeated -set path=value overrides.
type setFlags [][2]string

func (s *setFlags) String() string { return fmt.Sprint(*s) }

func (s *setFlags) Set(v string) error {
	path, raw, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return fmt.Errorf("want path=value, got %q", v)
	}
	*s = append(*s, [2]string{strings.TrimSpace(path), raw})
	return nil
}

func main() {
	var flags mixerapp.Flags
	flags.Register(flag.CommandLine)
	var sets setFlags
	flag.Var(&sets, "set", "Control override path=value, e.g. b0/c0/lvl=-6 (repeatable)")
	snapshotName := flag.String("snapshot", "", "Render a stored snapshot (\"latest\" or a snapshot name) instead of the defaults")
	output := flag.String("output", "mix.wav", "Output WAV file path")
	responseBins := flag.Int("response-size", 4096, "FFT size for the printed channel strip responses")
	comparePath := flag.String("compare", "", "Capture WAV of the hardware master to compare against the rendered left side")
	maxLagMS := flag.Float64("max-lag-ms", 50, "Alignment search window for -compare in milliseconds")
	stemsDir := flag.String("stems", "", "Directory for one mono WAV per physical bus")
	flag.Parse()

	cfg, err := flags.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Inputs) == 0 {
		fmt.Fprintf(os.Stderr, "Error: config has no inputs to render\n")
		os.Exit(1)
	}
	topo, err := cfg.BuildTopology()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := []controller.Option{controller.WithTranslateOptions(cfg.TranslateOptions())}
	if *snapshotName != "" {
		store, err := snapshot.Open(cfg.SnapshotDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening snapshot store: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, controller.WithSnapshotStore(store))
	}
	c, err := controller.New(topo, cfg.Word, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *snapshotName != "" {
		err = c.LoadSnapshot(*snapshotName)
	} else {
		err = c.DumpStateToMixer()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing state: %v\n", err)
		os.Exit(1)
	}
	for _, kv := range sets {
		if err := c.Set(kv[0], kv[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error applying %s=%s: %v\n", kv[0], kv[1], err)
			os.Exit(1)
		}
	}

	inputs, err := audioio.ReadInputs(cfg.Inputs, cfg.SampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading inputs: %v\n", err)
		os.Exit(1)
	}
	m := sim.FromImage(c.Image(), topo)
	for ch, in := range inputs {
		if in == nil {
			continue
		}
		fmt.Printf("c%d: %s (%d samples, %.1f dBFS rms)\n", ch, cfg.Inputs[ch], len(in), audioio.DBFS(audioio.RMS(in)))
		if *responseBins > 0 {
			printResponse(m, ch, *responseBins, float64(cfg.SampleRate))
		}
	}

	out, err := m.Render(inputs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering: %v\n", err)
		os.Exit(1)
	}
	left, right := m.Master(out)
	lv, err := audioio.WriteStereo(*output, left, right, cfg.SampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAV file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully wrote %s (%d frames, %s)\n", *output, len(left), describeLevels(lv))

	if *stemsDir != "" {
		for phys, bus := range out {
			path := filepath.Join(*stemsDir, stemName(topo, phys))
			lv, err := audioio.WriteMono(path, bus, cfg.SampleRate)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error writing stem: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("  stem %s (%s)\n", path, describeLevels(lv))
		}
	}

	if *comparePath == "" {
		return
	}
	capture, err := audioio.ReadMonoAt(*comparePath, cfg.SampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading capture: %v\n", err)
		os.Exit(1)
	}
	maxLag := int(*maxLagMS * float64(cfg.SampleRate) / 1000)
	match := sim.Compare(left, capture, maxLag)
	b, err := json.MarshalIndent(match, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding comparison: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Capture %s vs render:\n%s\n", *comparePath, b)
}

// printResponse prints a channel strip's gain at octave centers.
func printResponse(m *sim.Mixer, ch, n int, sampleRate float64) {
	freqs, db := sim.Response(m.ChannelStrip(ch), n, sampleRate)
	var b strings.Builder
	fmt.Fprintf(&b, "c%d strip:", ch)
	for f := 31.25; f < sampleRate/2; f *= 2 {
		bin := int(math.Round(f * float64(n) / sampleRate))
		if bin >= len(freqs) {
			break
		}
		fmt.Fprintf(&b, " %.0fHz=%+.1f", freqs[bin], db[bin])
	}
	fmt.Println(b.String())
}

// stemName names a physical bus file after its logical bus, with the side
// for stereo busses: b0L.wav, b0R.wav, b2.wav.
func stemName(topo *topology.Topology, phys int) string {
	logical := topo.LogicalBus(phys)
	if !topo.IsStereo(logical) {
		return fmt.Sprintf("b%d.wav", logical)
	}
	side := "L"
	if topo.PhysicalBusses(logical)[1] == phys {
		side = "R"
	}
	return fmt.Sprintf("b%d%s.wav", logical, side)
}

func describeLevels(lv audioio.Levels) string {
	s := fmt.Sprintf("peak %.1f dBFS, rms %.1f dBFS", lv.PeakDBFS(), lv.RMSDBFS())
	if lv.Clipped > 0 {
		s += fmt.Sprintf(", %d samples clipped", lv.Clipped)
	}
	return s
}
