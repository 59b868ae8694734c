// Package fixedpoint converts between real-valued mixer parameters and the
// signed fixed-point words that live in the FPGA parameter memory.
//
// A Format describes a two's complement word of Bits total bits of which Frac
// are fractional. Out-of-range values saturate to the most positive or most
// negative representable word; they never wrap into a neighbouring word.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNotFinite     = errors.New("fixedpoint: value is not finite")
	ErrInvalidFormat = errors.New("fixedpoint: invalid format")
)

// Format is a signed fixed-point word layout.
type Format struct {
	Bits int // total bits including sign, 2..32
	Frac int // fractional bits, 0..Bits-1
}

// Param is the parameter-memory word format: 20-bit words, S3.16.
var Param = Format{Bits: 20, Frac: 16}

// Validate reports whether the format can be encoded into a uint32 word.
func (f Format) Validate() error {
	if f.Bits < 2 || f.Bits > 32 {
		return fmt.Errorf("%w: bits %d (must be 2..32)", ErrInvalidFormat, f.Bits)
	}
	if f.Frac < 0 || f.Frac >= f.Bits {
		return fmt.Errorf("%w: frac %d (must be 0..%d)", ErrInvalidFormat, f.Frac, f.Bits-1)
	}
	return nil
}

// Resolution is the value of one LSB.
func (f Format) Resolution() float64 {
	return math.Ldexp(1, -f.Frac)
}

// Max is the most positive representable value.
func (f Format) Max() float64 {
	return float64(f.maxRaw()) * f.Resolution()
}

// Min is the most negative representable value.
func (f Format) Min() float64 {
	return float64(f.minRaw()) * f.Resolution()
}

func (f Format) maxRaw() int64 { return 1<<(f.Bits-1) - 1 }
func (f Format) minRaw() int64 { return -(1 << (f.Bits - 1)) }
func (f Format) mask() uint32 { return uint32(1<<f.Bits - 1) }

// Encode converts v to a word. The bits above Bits are always zero.
func (f Format) Encode(v float64) (uint32, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNotFinite, v)
	}
	raw, _ := f.quantize(v)
	return uint32(raw) & f.mask(), nil
}

// EncodeSaturated is Encode that also reports whether v was clamped.
func (f Format) EncodeSaturated(v float64) (uint32, bool, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: %v", ErrNotFinite, v)
	}
	raw, clamped := f.quantize(v)
	return uint32(raw) & f.mask(), clamped, nil
}

func (f Format) quantize(v float64) (int64, bool) {
	scaled := math.Round(math.Ldexp(v, f.Frac))
	if scaled > float64(f.maxRaw()) {
		return f.maxRaw(), true
	}
	if scaled < float64(f.minRaw()) {
		return f.minRaw(), true
	}
	return int64(scaled), false
}

// Decode is the exact inverse of Encode for representable values. Bits above
// Bits are ignored.
func (f Format) Decode(w uint32) float64 {
	w &= f.mask()
	raw := int64(w)
	if w&(1<<(f.Bits-1)) != 0 {
		raw -= 1 << f.Bits
	}
	return math.Ldexp(float64(raw), -f.Frac)
}

// Hex renders a word with as many hex digits as the format needs.
func (f Format) Hex(w uint32) string {
	digits := (f.Bits + 3) / 4
	return fmt.Sprintf("%0*x", digits, w&f.mask())
}

// EncodeSlice encodes values in logical order.
func (f Format) EncodeSlice(values []float64) ([]uint32, error) {
	out := make([]uint32, len(values))
	for i, v := range values {
		w, err := f.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", i, err)
		}
		out[i] = w
	}
	return out, nil
}

// EncodePayload encodes values for transmission. The link carries
// multi-word payloads last word first.
func (f Format) EncodePayload(values []float64) ([]uint32, error) {
	out, err := f.EncodeSlice(values)
	if err != nil {
		return nil, err
	}
	Reverse(out)
	return out, nil
}

// DecodePayload undoes EncodePayload, returning values in logical order.
func (f Format) DecodePayload(words []uint32) []float64 {
	out := make([]float64, len(words))
	for i, w := range words {
		out[len(words)-1-i] = f.Decode(w)
	}
	return out
}

// Reverse reverses words in place.
func Reverse(words []uint32) {
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
}
