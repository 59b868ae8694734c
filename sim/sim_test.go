package sim

import (
	"math"
	"testing"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-mixer/controller"
	"github.com/cwbudde/algo-mixer/fixedpoint"
	"github.com/cwbudde/algo-mixer/topology"
)

func newController(t *testing.T, sets ...[2]string) *controller.Controller {
	t.Helper()
	c, err := controller.New(topology.Default(), fixedpoint.Param)
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	if err := c.DumpStateToMixer(); err != nil {
		t.Fatalf("DumpStateToMixer: %v", err)
	}
	for _, kv := range sets {
		if err := c.Set(kv[0], kv[1]); err != nil {
			t.Fatalf("Set(%s, %s): %v", kv[0], kv[1], err)
		}
	}
	return c
}

func impulse(n int) []float64 {
	x := make([]float64, n)
	x[0] = 1
	return x
}

func TestImpulseThroughCenteredMaster(t *testing.T) {
	c := newController(t, [2]string{"c0/mute", "false"}, [2]string{"b0/c0/lvl", "0"})
	m := FromImage(c.Image(), c.Topology())

	out, err := m.Render([][]float64{impulse(256)})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	left, right := m.Master(out)
	want := math.Pow(0.5, 3/(20*math.Log10(2)))
	tol := 1e-3
	if math.Abs(left[0]-want) > tol || math.Abs(right[0]-want) > tol {
		t.Fatalf("first sample got=%v/%v want=%v", left[0], right[0], want)
	}
	for i := 1; i < len(left); i++ {
		if math.Abs(left[i]) > tol {
			t.Fatalf("flat strips rang at sample %d: %v", i, left[i])
		}
	}
}

func TestMutedChannelIsSilent(t *testing.T) {
	c := newController(t, [2]string{"b0/c0/lvl", "0"})
	m := FromImage(c.Image(), c.Topology())
	out, err := m.Render([][]float64{impulse(64)})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for phys, bus := range out {
		for i, v := range bus {
			if v != 0 {
				t.Fatalf("bus %d sample %d got=%v want=0", phys, i, v)
			}
		}
	}
	if _, err := m.Render(make([][]float64, c.Topology().NumChannels()+1)); err == nil {
		t.Fatalf("expected error for too many inputs")
	}
}

func TestResponseShowsPeakingBoost(t *testing.T) {
	c := newController(t, [2]string{"c3/f2/gain", "6"})
	m := FromImage(c.Image(), c.Topology())

	const n = 4096
	const sampleRate = 48000
	freqs, db := Response(m.ChannelStrip(3), n, sampleRate)
	bin := int(math.Round(1000 * n / sampleRate))
	if math.Abs(freqs[bin]-1000) > sampleRate/n {
		t.Fatalf("bin %d is %v Hz", bin, freqs[bin])
	}
	if math.Abs(db[bin]-6) > 0.2 {
		t.Fatalf("gain at 1 kHz got=%v dB want=6", db[bin])
	}
	if math.Abs(db[1]) > 0.2 || math.Abs(db[n/2]) > 0.2 {
		t.Fatalf("band edges not flat: %v dB / %v dB", db[1], db[n/2])
	}

	_, flat := Response(m.ChannelStrip(4), n, sampleRate)
	if math.Abs(flat[bin]) > 0.05 {
		t.Fatalf("untouched strip at 1 kHz got=%v dB", flat[bin])
	}
}

func TestFromImageDecodesBusStripsOnBothSides(t *testing.T) {
	c := newController(t, [2]string{"b0/f2/gain", "6"})
	m := FromImage(c.Image(), c.Topology())

	const n = 4096
	const sampleRate = 48000
	bin := int(math.Round(1000 * n / sampleRate))
	for _, phys := range c.Topology().PhysicalBusses(0) {
		_, db := Response(m.BusStrip(phys), n, sampleRate)
		if math.Abs(db[bin]-6) > 0.2 {
			t.Fatalf("master bus %d at 1 kHz got=%v dB want=6", phys, db[bin])
		}
	}
	aux := c.Topology().PhysicalBusses(1)[0]
	if _, db := Response(m.BusStrip(aux), n, sampleRate); math.Abs(db[bin]) > 0.05 {
		t.Fatalf("aux bus at 1 kHz got=%v dB", db[bin])
	}
	if _, db := Response(m.ChannelStrip(0), n, sampleRate); math.Abs(db[bin]) > 0.05 {
		t.Fatalf("channel strip picked up bus filter: %v dB", db[bin])
	}
}

func TestRenderMatchesConvolutionWithImpulseResponse(t *testing.T) {
	c := newController(t,
		[2]string{"c1/mute", "false"},
		[2]string{"b1/c1/lvl", "-6"},
		[2]string{"c1/f0/gain", "-9"},
		[2]string{"c1/f3/gain", "4"},
	)
	m := FromImage(c.Image(), c.Topology())
	topo := c.Topology()
	phys := topo.PhysicalBusses(1)[0]

	x := make([]float64, 512)
	for i := range x {
		x[i] = math.Sin(2*math.Pi*440*float64(i)/48000) * math.Exp(-float64(i)/200)
	}
	inputs := make([][]float64, 2)
	inputs[1] = x
	out, err := m.Render(inputs)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	// Channel strip, gain and bus strip collapse to one impulse response.
	h := Impulse(m.BusStrip(phys), 4096)
	ch := Impulse(m.ChannelStrip(1), len(h))
	a := make([]float32, len(h))
	b := make([]float32, len(h))
	for i := range h {
		a[i] = float32(ch[i] * m.Gain(phys, 1))
		b[i] = float32(h[i])
	}
	full := make([]float32, len(a)+len(b)-1)
	if err := algofft.ConvolveReal(full, a, b); err != nil {
		t.Fatalf("ConvolveReal: %v", err)
	}
	xf := make([]float32, len(x))
	for i, v := range x {
		xf[i] = float32(v)
	}
	want := make([]float32, len(xf)+len(full)-1)
	if err := algofft.ConvolveReal(want, xf, full); err != nil {
		t.Fatalf("ConvolveReal: %v", err)
	}

	for i, got := range out[phys] {
		if math.Abs(got-float64(want[i])) > 1e-3 {
			t.Fatalf("sample %d got=%v want=%v", i, got, want[i])
		}
	}
}

func TestCompareFindsLagAndGain(t *testing.T) {
	ref := make([]float64, 4000)
	seed := uint32(1)
	for i := range ref {
		seed = seed*1664525 + 1013904223
		ref[i] = float64(int32(seed)) / math.MaxInt32 * math.Exp(-float64(i)/1500)
	}
	capture := make([]float64, 7, len(ref)+7)
	for _, v := range ref {
		capture = append(capture, 0.5*v)
	}

	m := Compare(ref, capture, 32)
	if m.LagSamples != -7 || m.AlignedFrames != len(ref) {
		t.Fatalf("alignment got lag=%d frames=%d want -7/%d", m.LagSamples, m.AlignedFrames, len(ref))
	}
	if math.Abs(m.GainDB+20*math.Log10(2)) > 1e-6 {
		t.Fatalf("gain got=%v dB want=-6.02", m.GainDB)
	}
	if m.ResidualDB > -100 || m.SpectralRMSEDB > 1e-6 {
		t.Fatalf("scaled copy not matched: residual=%v spectral=%v", m.ResidualDB, m.SpectralRMSEDB)
	}

	if z := Compare(nil, capture, 32); z != (Match{}) {
		t.Fatalf("empty reference got=%+v", z)
	}
}

func TestCompareDetectsEQDifference(t *testing.T) {
	x := make([]float64, 4096)
	seed := uint32(7)
	for i := range x {
		seed = seed*1664525 + 1013904223
		x[i] = float64(int32(seed)) / math.MaxInt32 * 0.25
	}
	render := func(sets ...[2]string) []float64 {
		c := newController(t, append([][2]string{{"c0/mute", "false"}, {"b0/c0/lvl", "0"}}, sets...)...)
		m := FromImage(c.Image(), c.Topology())
		out, err := m.Render([][]float64{x})
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		left, _ := m.Master(out)
		return left
	}
	flat := render()
	boosted := render([2]string{"c0/f3/gain", "12"})

	if m := Compare(flat, render(), 16); m.LagSamples != 0 || m.SpectralRMSEDB > 1e-9 {
		t.Fatalf("identical renders differ: %+v", m)
	}
	m := Compare(flat, boosted, 16)
	if m.LagSamples != 0 {
		t.Fatalf("filter moved alignment: lag=%d", m.LagSamples)
	}
	if m.SpectralRMSEDB < 1 || m.ResidualDB < -40 {
		t.Fatalf("12 dB presence boost not detected: %+v", m)
	}
}
