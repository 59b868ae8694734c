// Package mixer holds the logical mixing state: bus, channel, fader and
// filter parameters addressed by structured keys, plus the metadata of the
// topology the state was built for.
package mixer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-mixer/dsp"
	"github.com/cwbudde/algo-mixer/eq"
	"github.com/cwbudde/algo-mixer/topology"
)

var (
	ErrInvalidSnapshot  = errors.New("mixer: invalid snapshot")
	ErrMissingParameter = errors.New("mixer: missing parameter")
	ErrUnknownControl   = errors.New("mixer: unknown control")
	ErrInvalidValue     = errors.New("mixer: invalid value")
)

// SeedFrequencies are the default filter-bank center frequencies.
var SeedFrequencies = []float64{250, 500, 1000, 6000, 12000}

// DefaultQ is the default quality factor of every filter.
var DefaultQ = math.Sqrt2 / 2

// Metadata describes the topology a state was built for.
type Metadata struct {
	NumBusses            int `json:"num_busses"`
	NumChannels          int `json:"num_channels"`
	NumBiquadsPerChannel int `json:"num_biquads_per_channel"`
	NumBiquadsPerBus     int `json:"num_biquads_per_bus"`
}

// MetadataFor derives the metadata of t.
func MetadataFor(t *topology.Topology) Metadata {
	return Metadata{
		NumBusses:            t.NumLogicalBusses(),
		NumChannels:          t.NumChannels(),
		NumBiquadsPerChannel: t.BiquadsPerChannel(),
		NumBiquadsPerBus:     t.BiquadsPerBus(),
	}
}

// State is the full logical mixer state. It is not safe for concurrent use.
type State struct {
	meta   Metadata
	values map[Key]Value
}

// NewDefault builds the startup state for meta: bus 0 is "Master", the last
// bus is "Solo", channels are muted and every filter bank is flat.
func NewDefault(meta Metadata) *State {
	s := &State{meta: meta, values: make(map[Key]Value)}
	solo := meta.NumBusses - 1

	for bus := 0; bus < meta.NumBusses; bus++ {
		name := fmt.Sprintf("Aux %d", bus)
		switch bus {
		case 0:
			name = "Master"
		case solo:
			name = "Solo"
		}
		s.values[BusKey(bus, ParamName)] = Text(name)
		s.values[BusKey(bus, ParamLevel)] = Number(0)
		s.values[BusKey(bus, ParamPan)] = Number(0)

		for ch := 0; ch < meta.NumChannels; ch++ {
			s.values[FaderKey(bus, ch, ParamLevel)] = Number(dsp.MinFaderDB)
			s.values[FaderKey(bus, ch, ParamPan)] = Number(0)
		}
		for i, f := range defaultBank(meta.NumBiquadsPerBus) {
			s.setFilter(BusFilterKey(bus, i, 0), f)
		}
	}

	for ch := 0; ch < meta.NumChannels; ch++ {
		s.values[ChannelKey(ch, ParamName)] = Text(fmt.Sprintf("Ch%d", ch+1))
		s.values[ChannelKey(ch, ParamMute)] = Flag(true)
		s.values[ChannelKey(ch, ParamPFL)] = Flag(false)
		for i, f := range defaultBank(meta.NumBiquadsPerChannel) {
			s.setFilter(ChannelFilterKey(ch, i, 0), f)
		}
	}
	return s
}

type filterDefault struct {
	typ  eq.Type
	freq float64
}

// defaultBank alternates low-shelf, peaking..., high-shelf over the seed
// frequencies. Banks of another size get log-spaced frequencies over the
// same range.
func defaultBank(n int) []filterDefault {
	freqs := SeedFrequencies
	if n != len(SeedFrequencies) {
		freqs = make([]float64, n)
		lo, hi := SeedFrequencies[0], SeedFrequencies[len(SeedFrequencies)-1]
		for i := range freqs {
			if n == 1 {
				freqs[i] = math.Sqrt(lo * hi)
				continue
			}
			freqs[i] = lo * math.Pow(hi/lo, float64(i)/float64(n-1))
		}
	}
	out := make([]filterDefault, n)
	for i, f := range freqs {
		typ := eq.Peaking
		switch {
		case n == 1:
		case i == 0:
			typ = eq.LowShelf
		case i == n-1:
			typ = eq.HighShelf
		}
		out[i] = filterDefault{typ: typ, freq: f}
	}
	return out
}

func (s *State) setFilter(base Key, f filterDefault) {
	base.Param = ParamType
	s.values[base] = Text(string(f.typ))
	base.Param = ParamFreq
	s.values[base] = Number(f.freq)
	base.Param = ParamGain
	s.values[base] = Number(0)
	base.Param = ParamQ
	s.values[base] = Number(DefaultQ)
}

// Metadata returns the topology description the state was built for.
func (s *State) Metadata() Metadata { return s.meta }

// Len is the number of parameters.
func (s *State) Len() int { return len(s.values) }

// Has reports whether k is a parameter of this state.
func (s *State) Has(k Key) bool {
	_, ok := s.values[k]
	return ok
}

// Get returns the value at k.
func (s *State) Get(k Key) (Value, bool) {
	v, ok := s.values[k]
	return v, ok
}

// Number returns the numeric parameter k or ErrMissingParameter.
func (s *State) Number(k Key) (float64, error) {
	v, ok := s.values[k]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParameter, k)
	}
	n, ok := v.Number()
	if !ok {
		return 0, fmt.Errorf("%w: %s holds %s, want number", ErrInvalidValue, k, v.Kind())
	}
	return n, nil
}

// Flag returns the boolean parameter k or ErrMissingParameter.
func (s *State) Flag(k Key) (bool, error) {
	v, ok := s.values[k]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingParameter, k)
	}
	b, ok := v.Flag()
	if !ok {
		return false, fmt.Errorf("%w: %s holds %s, want flag", ErrInvalidValue, k, v.Kind())
	}
	return b, nil
}

// Text returns the text parameter k or ErrMissingParameter.
func (s *State) Text(k Key) (string, error) {
	v, ok := s.values[k]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, k)
	}
	t, ok := v.Text()
	if !ok {
		return "", fmt.Errorf("%w: %s holds %s, want text", ErrInvalidValue, k, v.Kind())
	}
	return t, nil
}

// Pan runs from hard left to hard right.
const (
	MinPan = -0.5
	MaxPan = 0.5
)

// Set replaces an existing parameter. Keys absent from the state are
// rejected with ErrUnknownControl; values of the wrong kind, filter types
// the designer does not know, non-finite numbers and pans outside
// [MinPan, MaxPan] with ErrInvalidValue.
func (s *State) Set(k Key, v Value) error {
	if _, ok := s.values[k]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownControl, k)
	}
	if err := checkValue(k, v); err != nil {
		return err
	}
	s.values[k] = v
	return nil
}

func checkValue(k Key, v Value) error {
	if want := k.Param.Kind(); v.Kind() != want {
		return fmt.Errorf("%w: %s wants %s, got %s", ErrInvalidValue, k, want, v.Kind())
	}
	if n, ok := v.Number(); ok && (math.IsNaN(n) || math.IsInf(n, 0)) {
		return fmt.Errorf("%w: %s: non-finite number", ErrInvalidValue, k)
	}
	if n, _ := v.Number(); k.Param == ParamPan && (n < MinPan || n > MaxPan) {
		return fmt.Errorf("%w: %s: pan %g outside [%g, %g]", ErrInvalidValue, k, n, MinPan, MaxPan)
	}
	if k.Param == ParamType {
		t, _ := v.Text()
		if _, err := eq.ParseType(t); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, k, err)
		}
	}
	return nil
}

// Keys returns every key in control-path order.
func (s *State) Keys() []Key {
	keys := make([]Key, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

func keyLess(a, b Key) bool {
	if a.Shape != b.Shape {
		return a.Shape < b.Shape
	}
	if a.Bus != b.Bus {
		return a.Bus < b.Bus
	}
	if a.Channel != b.Channel {
		return a.Channel < b.Channel
	}
	if a.Filter != b.Filter {
		return a.Filter < b.Filter
	}
	return a.Param < b.Param
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{meta: s.meta, values: make(map[Key]Value, len(s.values))}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// Restore overwrites s with the parameters of snap. The snapshot must carry
// identical metadata and only valid values for keys s knows; otherwise s is
// left untouched and ErrInvalidSnapshot is returned.
func (s *State) Restore(snap *State) error {
	if snap.meta != s.meta {
		return fmt.Errorf("%w: metadata %+v does not match %+v", ErrInvalidSnapshot, snap.meta, s.meta)
	}
	for k, v := range snap.values {
		if _, ok := s.values[k]; !ok {
			return fmt.Errorf("%w: unknown parameter %s", ErrInvalidSnapshot, k)
		}
		if err := checkValue(k, v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	}
	for k, v := range snap.values {
		s.values[k] = v
	}
	return nil
}
