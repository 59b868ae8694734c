// Package translate derives the per-core parameter memory of the mixer from
// the logical mixer state.
package translate

import (
	"fmt"
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-mixer/dsp"
	"github.com/cwbudde/algo-mixer/eq"
	"github.com/cwbudde/algo-mixer/mixer"
	"github.com/cwbudde/algo-mixer/topology"
)

// SetMemory writes data contiguously at addr in the parameter memory of
// core. data is only valid for the duration of the call.
type SetMemory func(core, addr int, data []float64) error

// CoefficientCache is the memoizing lookup used for filter design.
type CoefficientCache interface {
	Get(compute func(eq.Params) (eq.Taps, error), key eq.Params) (eq.Taps, error)
}

// Corner frequency and Q of the low-pass that smooths meter power samples.
const MeterFilterFc = 7.5

var MeterFilterQ = math.Sqrt2 / 2

// Constants is the block every core expects at topology.ConstantsAddr.
var Constants = []float64{0, 1, -1, 0.5}

// Options are the fixed design constants of a translation.
type Options struct {
	SampleRate float64
	PanLaw     dsp.PanLaw
}

// DefaultOptions is 48 kHz with a 3 dB pan law.
func DefaultOptions() Options {
	return Options{
		SampleRate: 48000,
		PanLaw:     dsp.NewPanLaw(dsp.DefaultPanLawDB),
	}
}

// Translate writes the full parameter image for s through set. It reads
// every parameter it needs from s and fails with mixer.ErrMissingParameter
// if one is absent; callers must then discard whatever set received.
func Translate(s *mixer.State, t *topology.Topology, set SetMemory, c CoefficientCache, opts Options) error {
	if err := channelFilters(s, t, set, c, opts); err != nil {
		return err
	}
	if err := busFilters(s, t, set, c, opts); err != nil {
		return err
	}
	if err := downmix(s, t, set, opts); err != nil {
		return err
	}
	return constants(t, set, opts)
}

func channelFilters(s *mixer.State, t *topology.Topology, set SetMemory, c CoefficientCache, opts Options) error {
	for ch := 0; ch < t.NumChannels(); ch++ {
		for k := 0; k < t.BiquadsPerChannel(); k++ {
			taps, err := filterTaps(s, mixer.ChannelFilterKey(ch, k, 0), c, opts.SampleRate)
			if err != nil {
				return fmt.Errorf("channel %d filter %d: %w", ch, k, err)
			}
			core, addr := t.ChannelBiquadAddr(ch, k)
			if err := set(core, addr, taps[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

// busFilters replicates each logical bus filter to every physical bus of
// that logical bus.
func busFilters(s *mixer.State, t *topology.Topology, set SetMemory, c CoefficientCache, opts Options) error {
	for phys := 0; phys < t.NumPhysicalBusses(); phys++ {
		bus := t.LogicalBus(phys)
		for k := 0; k < t.BiquadsPerBus(); k++ {
			taps, err := filterTaps(s, mixer.BusFilterKey(bus, k, 0), c, opts.SampleRate)
			if err != nil {
				return fmt.Errorf("bus %d filter %d: %w", bus, k, err)
			}
			core, addr := t.BusBiquadAddr(phys, k)
			if err := set(core, addr, taps[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

func filterTaps(s *mixer.State, base mixer.Key, c CoefficientCache, sampleRate float64) (eq.Taps, error) {
	p, err := FilterParams(s, base, sampleRate)
	if err != nil {
		return eq.Taps{}, err
	}
	return c.Get(eq.Compute, p)
}

// FilterParams reads the design parameters of the filter addressed by base;
// base.Param is ignored.
func FilterParams(s *mixer.State, base mixer.Key, sampleRate float64) (eq.Params, error) {
	key := func(p mixer.Param) mixer.Key {
		k := base
		k.Param = p
		return k
	}
	name, err := s.Text(key(mixer.ParamType))
	if err != nil {
		return eq.Params{}, err
	}
	typ, err := eq.ParseType(name)
	if err != nil {
		return eq.Params{}, err
	}
	p := eq.Params{Type: typ, SampleRate: sampleRate}
	if p.Freq, err = s.Number(key(mixer.ParamFreq)); err != nil {
		return eq.Params{}, err
	}
	if p.GainDB, err = s.Number(key(mixer.ParamGain)); err != nil {
		return eq.Params{}, err
	}
	if p.Q, err = s.Number(key(mixer.ParamQ)); err != nil {
		return eq.Params{}, err
	}
	return p, nil
}

// ChannelGain is the absolute linear send level of ch into a logical bus.
// The solo bus follows PFL only, ignoring mute; every other bus is silent
// for a muted channel and otherwise combines fader and bus level.
func ChannelGain(s *mixer.State, t *topology.Topology, bus, ch int) (float64, error) {
	if bus == t.SoloBus() {
		pfl, err := s.Flag(mixer.ChannelKey(ch, mixer.ParamPFL))
		if err != nil {
			return 0, err
		}
		if pfl {
			return 1, nil
		}
		return 0, nil
	}
	mute, err := s.Flag(mixer.ChannelKey(ch, mixer.ParamMute))
	if err != nil {
		return 0, err
	}
	if mute {
		return 0, nil
	}
	fader, err := s.Number(mixer.FaderKey(bus, ch, mixer.ParamLevel))
	if err != nil {
		return 0, err
	}
	busLevel, err := s.Number(mixer.BusKey(bus, mixer.ParamLevel))
	if err != nil {
		return 0, err
	}
	return dsp.DBToGain(fader) * dsp.DBToGain(busLevel), nil
}

// GainMatrix computes the downmix gain of every channel into every physical
// bus, indexed [physical][channel].
func GainMatrix(s *mixer.State, t *topology.Topology, law dsp.PanLaw) ([][]float64, error) {
	gains := make([][]float64, t.NumPhysicalBusses())
	for i := range gains {
		gains[i] = make([]float64, t.NumChannels())
	}
	for bus := 0; bus < t.NumLogicalBusses(); bus++ {
		phys := t.PhysicalBusses(bus)
		for ch := 0; ch < t.NumChannels(); ch++ {
			g, err := ChannelGain(s, t, bus, ch)
			if err != nil {
				return nil, fmt.Errorf("bus %d channel %d: %w", bus, ch, err)
			}
			if len(phys) == 1 {
				gains[phys[0]][ch] = g
				continue
			}
			pan, err := s.Number(mixer.FaderKey(bus, ch, mixer.ParamPan))
			if err != nil {
				return nil, fmt.Errorf("bus %d channel %d: %w", bus, ch, err)
			}
			left, right := law.Gains(pan)
			gains[phys[0]][ch] = g * left
			gains[phys[1]][ch] = g * right
		}
	}
	return gains, nil
}

// downmix writes one contiguous row of gains per physical bus and core.
func downmix(s *mixer.State, t *topology.Topology, set SetMemory, opts Options) error {
	gains, err := GainMatrix(s, t, opts.PanLaw)
	if err != nil {
		return err
	}
	cpc := t.ChannelsPerCore()
	row := make([]float64, cpc)
	for phys, perChannel := range gains {
		for core := 0; core < t.NumCores(); core++ {
			first := core * cpc
			for i := range row {
				row[i] = dspcore.FlushDenormals(perChannel[first+i])
			}
			_, addr := t.GainAddr(phys, first)
			if err := set(core, addr, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func constants(t *topology.Topology, set SetMemory, opts Options) error {
	meter := dsp.StateVariableParams(MeterFilterFc, MeterFilterQ, opts.SampleRate)
	for core := 0; core < t.NumCores(); core++ {
		if err := set(core, topology.ConstantsAddr, Constants); err != nil {
			return err
		}
		if err := set(core, topology.MeterFilterAddr, meter[:]); err != nil {
			return err
		}
	}
	return nil
}
