// Package sim models the mixer's signal path in software. A Mixer is decoded
// from a parameter image, so it renders exactly what the hardware would be
// told to do, fixed-point quantization included.
package sim

import (
	"fmt"
	"math"
	"math/cmplx"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/mjibson/go-dsp/fft"

	"github.com/cwbudde/algo-mixer/eq"
	"github.com/cwbudde/algo-mixer/topology"
)

// Memory is the read side of a parameter image.
type Memory interface {
	Value(core, addr int) float64
}

// Mixer holds the decoded strips and downmix matrix. It keeps no filter
// state between renders.
type Mixer struct {
	topo     *topology.Topology
	channels [][]biquad.Coefficients
	busses   [][]biquad.Coefficients
	gains    [][]float64 // [physical bus][channel]
}

// FromImage decodes every channel strip, bus strip and downmix gain.
func FromImage(mem Memory, topo *topology.Topology) *Mixer {
	m := &Mixer{
		topo:     topo,
		channels: make([][]biquad.Coefficients, topo.NumChannels()),
		busses:   make([][]biquad.Coefficients, topo.NumPhysicalBusses()),
		gains:    make([][]float64, topo.NumPhysicalBusses()),
	}
	for ch := range m.channels {
		m.channels[ch] = make([]biquad.Coefficients, topo.BiquadsPerChannel())
		for k := range m.channels[ch] {
			core, addr := topo.ChannelBiquadAddr(ch, k)
			m.channels[ch][k] = readBiquad(mem, core, addr)
		}
	}
	for phys := range m.busses {
		m.busses[phys] = make([]biquad.Coefficients, topo.BiquadsPerBus())
		for k := range m.busses[phys] {
			core, addr := topo.BusBiquadAddr(phys, k)
			m.busses[phys][k] = readBiquad(mem, core, addr)
		}
		m.gains[phys] = make([]float64, topo.NumChannels())
		for ch := range m.gains[phys] {
			m.gains[phys][ch] = mem.Value(topo.GainAddr(phys, ch))
		}
	}
	return m
}

func readBiquad(mem Memory, core, addr int) biquad.Coefficients {
	var taps eq.Taps
	for i := range taps {
		taps[i] = mem.Value(core, addr+i)
	}
	return eq.Unpack(taps)
}

// ChannelStrip returns the filter bank of channel ch.
func (m *Mixer) ChannelStrip(ch int) []biquad.Coefficients { return m.channels[ch] }

// BusStrip returns the filter bank of a physical bus.
func (m *Mixer) BusStrip(phys int) []biquad.Coefficients { return m.busses[phys] }

// Gain is the downmix gain of channel ch into a physical bus.
func (m *Mixer) Gain(phys, ch int) float64 { return m.gains[phys][ch] }

// Render runs inputs, one slice per channel, through channel strips, the
// downmix and the bus strips. Missing or short inputs are silence. The
// result has one slice per physical bus, as long as the longest input.
func (m *Mixer) Render(inputs [][]float64) ([][]float64, error) {
	if len(inputs) > len(m.channels) {
		return nil, fmt.Errorf("got %d inputs for %d channels", len(inputs), len(m.channels))
	}
	n := 0
	for _, in := range inputs {
		n = max(n, len(in))
	}

	filtered := make([][]float64, len(inputs))
	for ch, in := range inputs {
		if len(in) == 0 {
			continue
		}
		buf := make([]float64, n)
		copy(buf, in)
		biquad.NewChain(m.channels[ch]).ProcessBlock(buf)
		filtered[ch] = buf
	}

	out := make([][]float64, len(m.busses))
	for phys := range out {
		bus := make([]float64, n)
		for ch, buf := range filtered {
			g := m.gains[phys][ch]
			if buf == nil || g == 0 {
				continue
			}
			for i, v := range buf {
				bus[i] += g * v
			}
		}
		for i := range bus {
			bus[i] = dspcore.FlushDenormals(bus[i])
		}
		biquad.NewChain(m.busses[phys]).ProcessBlock(bus)
		out[phys] = bus
	}
	return out, nil
}

// Master picks the physical busses of logical bus 0 out of a Render result.
// A mono master is returned on both sides.
func (m *Mixer) Master(out [][]float64) (left, right []float64) {
	phys := m.topo.PhysicalBusses(0)
	return out[phys[0]], out[phys[len(phys)-1]]
}

// Impulse returns the first n samples of the impulse response of a cascade.
func Impulse(strip []biquad.Coefficients, n int) []float64 {
	h := make([]float64, n)
	if n > 0 {
		h[0] = 1
	}
	biquad.NewChain(strip).ProcessBlock(h)
	return h
}

// Response is the magnitude response of a cascade in dB at n/2+1 evenly
// spaced frequencies from 0 to sampleRate/2, computed from an n-sample
// impulse response.
func Response(strip []biquad.Coefficients, n int, sampleRate float64) (freqs, db []float64) {
	spec := fft.FFTReal(Impulse(strip, n))
	bins := n/2 + 1
	freqs = make([]float64, bins)
	db = make([]float64, bins)
	for i := 0; i < bins; i++ {
		freqs[i] = float64(i) * sampleRate / float64(n)
		db[i] = 20 * math.Log10(math.Max(cmplx.Abs(spec[i]), 1e-12))
	}
	return freqs, db
}
