package sim

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Match describes how closely a capture follows a rendered reference, e.g.
// a recording of the hardware's master output against Mixer.Master.
type Match struct {
	LagSamples    int `json:"lag_samples"`
	AlignedFrames int `json:"aligned_frames"`

	// GainDB is the capture's level relative to the reference. ResidualDB
	// is the gain-matched difference relative to the reference.
	GainDB         float64 `json:"gain_db"`
	ResidualDB     float64 `json:"residual_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`
}

const spectralFrame = 4096

// Compare aligns capture to reference within maxLag samples and measures
// level, residual and spectral differences. Empty or silent signals yield
// a zero Match.
func Compare(reference, capture []float64, maxLag int) Match {
	var m Match
	maxLag = min(maxLag, len(reference)-1, len(capture)-1)
	if maxLag < 0 {
		return m
	}
	m.LagSamples = bestLag(reference, capture, maxLag)
	ref, got := alignByLag(reference, capture, m.LagSamples)
	n := min(len(ref), len(got))
	ref, got = ref[:n], got[:n]
	m.AlignedFrames = n

	refRMS, gotRMS := rms(ref), rms(got)
	if refRMS <= 1e-12 || gotRMS <= 1e-12 {
		return m
	}
	g := gotRMS / refRMS
	m.GainDB = 20 * math.Log10(g)

	var sum float64
	for i := range ref {
		d := ref[i] - got[i]/g
		sum += d * d
	}
	m.ResidualDB = toDB(math.Sqrt(sum/float64(n)) / refRMS)
	m.SpectralRMSEDB = spectralRMSEDB(ref, got)
	return m
}

// bestLag maximizes the cross-correlation. A positive lag means the capture
// leads the reference.
func bestLag(ref, got []float64, maxLag int) int {
	lag := 0
	best := math.Inf(-1)
	for l := -maxLag; l <= maxLag; l++ {
		r, c := alignByLag(ref, got, l)
		n := min(len(r), len(c))
		var s float64
		for i := 0; i < n; i++ {
			s += r[i] * c[i]
		}
		if s > best {
			best, lag = s, l
		}
	}
	return lag
}

func alignByLag(ref, got []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		return ref[min(lag, len(ref)):], got
	}
	return ref, got[min(-lag, len(got)):]
}

// spectralRMSEDB compares Hann-windowed magnitude spectra of the first
// power-of-two frame, ignoring each side's overall level.
func spectralRMSEDB(a, b []float64) float64 {
	n := spectralFrame
	for n > min(len(a), len(b)) {
		n /= 2
	}
	if n < 64 {
		return 0
	}
	aw := make([]float64, n)
	bw := make([]float64, n)
	for i := 0; i < n; i++ {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		aw[i] = a[i] * w
		bw[i] = b[i] * w
	}
	sa, sb := fft.FFTReal(aw), fft.FFTReal(bw)
	ga := rms(aw)
	gb := rms(bw)
	if ga <= 1e-12 || gb <= 1e-12 {
		return 0
	}
	var sum float64
	for k := 1; k < n/2; k++ {
		d := toDB(cmplx.Abs(sa[k])/ga) - toDB(cmplx.Abs(sb[k])/gb)
		sum += d * d
	}
	return math.Sqrt(sum / float64(n/2-1))
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func toDB(x float64) float64 {
	return 20 * math.Log10(math.Max(x, 1e-12))
}
