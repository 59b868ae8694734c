// Package eq designs the biquad sections programmed into the mixer's channel
// and bus filter banks.
//
// Designs follow the bilinear-transform "cookbook" formulas. Results are
// normalized so that a0 == 1 and packed into the five-tap layout the FPGA
// reads: [b0, b1, b2, -a1, -a2]. The hardware adds its feedback terms, hence
// the sign flip on the last two taps.
package eq

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

var (
	ErrUnsupportedType  = errors.New("eq: unsupported filter type")
	ErrInvalidParameter = errors.New("eq: invalid filter parameter")
)

// Type is a filter response shape.
type Type string

const (
	LowShelf  Type = "lowshelf"
	HighShelf Type = "highshelf"
	Peaking   Type = "peaking"
	LowPass   Type = "lowpass"
)

// Types lists every supported shape.
var Types = []Type{LowShelf, HighShelf, Peaking, LowPass}

// ParseType validates a filter type name.
func ParseType(s string) (Type, error) {
	t := Type(s)
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

// NumTaps is the number of parameter words per packed biquad.
const NumTaps = 5

// Taps is a packed, normalized biquad as stored in parameter memory.
type Taps [NumTaps]float64

// Raw holds unnormalized transfer-function coefficients.
type Raw struct {
	B0, B1, B2 float64
	A0, A1, A2 float64
}

// Params identifies one filter design. It is comparable and used as the
// coefficient cache key.
type Params struct {
	Type       Type
	Freq       float64 // center or corner frequency, Hz
	GainDB     float64 // ignored for LowPass
	Q          float64
	SampleRate float64
}

// Validate checks the numeric domain of p.
func (p Params) Validate() error {
	for _, v := range []float64{p.Freq, p.GainDB, p.Q, p.SampleRate} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value in %+v", ErrInvalidParameter, p)
		}
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %g must be > 0", ErrInvalidParameter, p.SampleRate)
	}
	if p.Q <= 0 {
		return fmt.Errorf("%w: q %g must be > 0", ErrInvalidParameter, p.Q)
	}
	if p.Freq <= 0 || p.Freq >= p.SampleRate/2 {
		return fmt.Errorf("%w: frequency %g must be in (0, %g)", ErrInvalidParameter, p.Freq, p.SampleRate/2)
	}
	return nil
}

// Design computes the unnormalized coefficients for p.
func Design(p Params) (Raw, error) {
	switch p.Type {
	case LowShelf, HighShelf, Peaking, LowPass:
	default:
		return Raw{}, fmt.Errorf("%w: %q", ErrUnsupportedType, string(p.Type))
	}
	if err := p.Validate(); err != nil {
		return Raw{}, err
	}

	w0 := 2 * math.Pi * p.Freq / p.SampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * p.Q)
	a := math.Pow(10, p.GainDB/40)

	switch p.Type {
	case Peaking:
		return Raw{
			B0: 1 + alpha*a,
			B1: -2 * cosw0,
			B2: 1 - alpha*a,
			A0: 1 + alpha/a,
			A1: -2 * cosw0,
			A2: 1 - alpha/a,
		}, nil
	case LowShelf:
		k := 2 * math.Sqrt(a) * alpha
		return Raw{
			B0: a * ((a + 1) - (a-1)*cosw0 + k),
			B1: 2 * a * ((a - 1) - (a+1)*cosw0),
			B2: a * ((a + 1) - (a-1)*cosw0 - k),
			A0: (a + 1) + (a-1)*cosw0 + k,
			A1: -2 * ((a - 1) + (a+1)*cosw0),
			A2: (a + 1) + (a-1)*cosw0 - k,
		}, nil
	case HighShelf:
		k := 2 * math.Sqrt(a) * alpha
		return Raw{
			B0: a * ((a + 1) + (a-1)*cosw0 + k),
			B1: -2 * a * ((a - 1) + (a+1)*cosw0),
			B2: a * ((a + 1) + (a-1)*cosw0 - k),
			A0: (a + 1) - (a-1)*cosw0 + k,
			A1: 2 * ((a - 1) - (a+1)*cosw0),
			A2: (a + 1) - (a-1)*cosw0 - k,
		}, nil
	default: // LowPass
		return Raw{
			B0: (1 - cosw0) / 2,
			B1: 1 - cosw0,
			B2: (1 - cosw0) / 2,
			A0: 1 + alpha,
			A1: -2 * cosw0,
			A2: 1 - alpha,
		}, nil
	}
}

// Normalize divides every coefficient by A0. The result has A0 == 1.
func (r Raw) Normalize() Raw {
	inv := 1 / r.A0
	return Raw{
		B0: r.B0 * inv,
		B1: r.B1 * inv,
		B2: r.B2 * inv,
		A0: 1,
		A1: r.A1 * inv,
		A2: r.A2 * inv,
	}
}

// Coefficients converts a normalized design into algo-dsp's section layout.
func (r Raw) Coefficients() biquad.Coefficients {
	n := r
	if n.A0 != 1 {
		n = r.Normalize()
	}
	return biquad.Coefficients{B0: n.B0, B1: n.B1, B2: n.B2, A1: n.A1, A2: n.A2}
}

// Pack lays out c in parameter-memory order.
func Pack(c biquad.Coefficients) Taps {
	return Taps{c.B0, c.B1, c.B2, -c.A1, -c.A2}
}

// Unpack is the inverse of Pack.
func Unpack(t Taps) biquad.Coefficients {
	return biquad.Coefficients{B0: t[0], B1: t[1], B2: t[2], A1: -t[3], A2: -t[4]}
}

// Compute designs, normalizes and packs p. It is the compute function handed
// to the coefficient cache.
func Compute(p Params) (Taps, error) {
	raw, err := Design(p)
	if err != nil {
		return Taps{}, err
	}
	return Pack(raw.Normalize().Coefficients()), nil
}
