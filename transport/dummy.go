package transport

import (
	"context"
	"math"
	"time"

	"github.com/cwbudde/algo-approx"

	"github.com/cwbudde/algo-mixer/dsp"
	"github.com/cwbudde/algo-mixer/topology"
)

// meterTau is the release time constant of the simulated meters.
const meterTau = 0.3

// Dummy stands in for hardware. It never sends the image anywhere; instead it
// synthesizes meter readings from the master gains in the image, with a slow
// per-channel wobble so that the meters visibly move.
type Dummy struct {
	mem      Memory
	topo     *topology.Topology
	sink     MeterSink
	interval time.Duration

	start  time.Time
	last   time.Time
	levels []float64
}

func NewDummy(mem Memory, topo *topology.Topology, sink MeterSink, interval time.Duration) *Dummy {
	return &Dummy{
		mem:      mem,
		topo:     topo,
		sink:     sink,
		interval: interval,
		start:    time.Now(),
		levels:   make([]float64, sink.MeterSize()),
	}
}

func (d *Dummy) Run(ctx context.Context) error {
	return poll(ctx, d.interval, d.Step)
}

// Step publishes one smoothed meter packet for time now.
func (d *Dummy) Step(now time.Time) error {
	target := d.Powers(now)
	if d.last.IsZero() {
		copy(d.levels, target)
	} else {
		dt := now.Sub(d.last).Seconds()
		a := float64(approx.FastExp(float32(-dt / meterTau)))
		for i, v := range target {
			d.levels[i] = v + (d.levels[i]-v)*a
		}
	}
	d.last = now
	return d.sink.PublishMeter(d.levels)
}

// Powers computes the unsmoothed readings at now. Channels read their gain
// into physical bus 0; each physical bus reads the power sum of its sends.
func (d *Dummy) Powers(now time.Time) []float64 {
	t := now.Sub(d.start).Seconds()
	nch := d.topo.NumChannels()
	wobble := make([]float64, nch)
	for ch := range wobble {
		db := math.Sin(2 * math.Pi * (t + float64(ch)/4))
		wobble[ch] = dbToGain(db)
	}

	out := make([]float64, nch+d.topo.NumPhysicalBusses())
	for ch := 0; ch < nch; ch++ {
		core, addr := d.topo.GainAddr(0, ch)
		amp := (math.Abs(d.mem.Value(core, addr)) + 1e-6) * wobble[ch]
		out[ch] = amp * amp / dsp.MeterScale
	}
	for phys := 0; phys < d.topo.NumPhysicalBusses(); phys++ {
		var sum float64
		for ch := 0; ch < nch; ch++ {
			core, addr := d.topo.GainAddr(phys, ch)
			amp := d.mem.Value(core, addr) * wobble[ch]
			sum += amp * amp
		}
		out[nch+phys] = sum / dsp.MeterScale
	}
	return out
}

func dbToGain(db float64) float64 {
	return float64(approx.FastExp(float32(db * math.Ln10 / 20)))
}
