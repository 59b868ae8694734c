// Package topology describes the physical layout of the multi-core mixer:
// how many channels and busses each core carries, how logical busses map onto
// physical bus slots, and where every parameter lives in a core's memory.
package topology

import (
	"errors"
	"fmt"
)

var ErrInvalidTopology = errors.New("topology: invalid")

// Fixed per-core memory regions.
const (
	ConstantsAddr   = 0x000
	ConstantsWords  = 8
	MeterFilterAddr = 0x008
	MeterWords      = 8
	firstBiquadAddr = MeterFilterAddr + MeterWords

	// BiquadWords is the size of one packed biquad.
	BiquadWords = 5
)

// Params are the raw counts a Topology is built from.
type Params struct {
	NumCores          int
	ChannelsPerCore   int
	BussesPerCore     int
	BiquadsPerChannel int
	BiquadsPerBus     int
	WordsPerCore      int

	// BusMapping lists, per logical bus, its physical bus indices. One entry
	// is a mono bus, two are a stereo pair in left, right order.
	BusMapping [][]int
}

// DefaultParams is the reference deployment: two cores, a stereo master on
// physical busses 0 and 1 and six mono busses, the last of which is solo.
func DefaultParams() Params {
	return Params{
		NumCores:          2,
		ChannelsPerCore:   8,
		BussesPerCore:     4,
		BiquadsPerChannel: 5,
		BiquadsPerBus:     5,
		WordsPerCore:      1024,
		BusMapping:        [][]int{{0, 1}, {2}, {3}, {4}, {5}, {6}, {7}},
	}
}

// Topology is immutable after New.
type Topology struct {
	p          Params
	logicalFor []int

	busBiquadAddr int
	gainAddr      int
	usedWords     int
}

// New validates p and computes the memory layout.
func New(p Params) (*Topology, error) {
	if p.NumCores < 1 || p.ChannelsPerCore < 1 || p.BussesPerCore < 1 {
		return nil, fmt.Errorf("%w: cores=%d channels/core=%d busses/core=%d must all be >= 1",
			ErrInvalidTopology, p.NumCores, p.ChannelsPerCore, p.BussesPerCore)
	}
	if p.BiquadsPerChannel < 0 || p.BiquadsPerBus < 0 {
		return nil, fmt.Errorf("%w: negative biquad count", ErrInvalidTopology)
	}
	if len(p.BusMapping) < 2 {
		return nil, fmt.Errorf("%w: need at least a master and a solo bus", ErrInvalidTopology)
	}

	numPhysical := p.NumCores * p.BussesPerCore
	logicalFor := make([]int, numPhysical)
	for i := range logicalFor {
		logicalFor[i] = -1
	}
	mapping := make([][]int, len(p.BusMapping))
	for logical, phys := range p.BusMapping {
		if len(phys) != 1 && len(phys) != 2 {
			return nil, fmt.Errorf("%w: logical bus %d maps to %d physical busses (want 1 or 2)",
				ErrInvalidTopology, logical, len(phys))
		}
		for _, pb := range phys {
			if pb < 0 || pb >= numPhysical {
				return nil, fmt.Errorf("%w: logical bus %d: physical bus %d out of range [0,%d)",
					ErrInvalidTopology, logical, pb, numPhysical)
			}
			if logicalFor[pb] >= 0 {
				return nil, fmt.Errorf("%w: physical bus %d claimed by logical busses %d and %d",
					ErrInvalidTopology, pb, logicalFor[pb], logical)
			}
			logicalFor[pb] = logical
		}
		mapping[logical] = append([]int(nil), phys...)
	}
	for pb, logical := range logicalFor {
		if logical < 0 {
			return nil, fmt.Errorf("%w: physical bus %d belongs to no logical bus", ErrInvalidTopology, pb)
		}
	}
	p.BusMapping = mapping

	t := &Topology{p: p, logicalFor: logicalFor}
	t.busBiquadAddr = firstBiquadAddr + p.ChannelsPerCore*p.BiquadsPerChannel*BiquadWords
	t.gainAddr = t.busBiquadAddr + p.BussesPerCore*p.BiquadsPerBus*BiquadWords
	t.usedWords = t.gainAddr + numPhysical*p.ChannelsPerCore
	if t.usedWords > p.WordsPerCore {
		return nil, fmt.Errorf("%w: layout needs %d words per core, have %d",
			ErrInvalidTopology, t.usedWords, p.WordsPerCore)
	}
	return t, nil
}

// Default returns the reference topology.
func Default() *Topology {
	t, err := New(DefaultParams())
	if err != nil {
		panic(err)
	}
	return t
}

// Params returns a copy of the parameters t was built from.
func (t *Topology) Params() Params {
	p := t.p
	p.BusMapping = make([][]int, len(t.p.BusMapping))
	for i, phys := range t.p.BusMapping {
		p.BusMapping[i] = append([]int(nil), phys...)
	}
	return p
}

func (t *Topology) NumCores() int { return t.p.NumCores }
func (t *Topology) ChannelsPerCore() int { return t.p.ChannelsPerCore }
func (t *Topology) BussesPerCore() int { return t.p.BussesPerCore }
func (t *Topology) BiquadsPerChannel() int { return t.p.BiquadsPerChannel }
func (t *Topology) BiquadsPerBus() int { return t.p.BiquadsPerBus }
func (t *Topology) WordsPerCore() int { return t.p.WordsPerCore }
func (t *Topology) UsedWordsPerCore() int { return t.usedWords }
func (t *Topology) NumChannels() int { return t.p.NumCores * t.p.ChannelsPerCore }
func (t *Topology) NumPhysicalBusses() int { return len(t.logicalFor) }
func (t *Topology) NumLogicalBusses() int { return len(t.p.BusMapping) }
func (t *Topology) SoloBus() int { return len(t.p.BusMapping) - 1 }
func (t *Topology) IsStereo(logical int) bool { return len(t.p.BusMapping[logical]) == 2 }

// PhysicalBusses returns the physical slots of a logical bus (left, right for
// a stereo pair). The returned slice must not be modified.
func (t *Topology) PhysicalBusses(logical int) []int {
	return t.p.BusMapping[logical]
}

// LogicalBus is the inverse mapping.
func (t *Topology) LogicalBus(physical int) int {
	return t.logicalFor[physical]
}

// ChannelCore returns the core owning channel ch and its index on that core.
func (t *Topology) ChannelCore(ch int) (core, local int) {
	return ch / t.p.ChannelsPerCore, ch % t.p.ChannelsPerCore
}

// BusCore returns the core owning a physical bus and its index on that core.
func (t *Topology) BusCore(physical int) (core, local int) {
	return physical / t.p.BussesPerCore, physical % t.p.BussesPerCore
}

// ChannelBiquadAddr locates biquad k of channel ch.
func (t *Topology) ChannelBiquadAddr(ch, k int) (core, addr int) {
	core, local := t.ChannelCore(ch)
	return core, firstBiquadAddr + (local*t.p.BiquadsPerChannel+k)*BiquadWords
}

// BusBiquadAddr locates biquad k of a physical bus.
func (t *Topology) BusBiquadAddr(physical, k int) (core, addr int) {
	core, local := t.BusCore(physical)
	return core, t.busBiquadAddr + (local*t.p.BiquadsPerBus+k)*BiquadWords
}

// GainAddr locates the downmix gain of channel ch into a physical bus. Each
// core mixes its own channels into every physical bus, so the word lives on
// the channel's core.
func (t *Topology) GainAddr(physical, ch int) (core, addr int) {
	core, local := t.ChannelCore(ch)
	return core, t.gainAddr + physical*t.p.ChannelsPerCore + local
}
