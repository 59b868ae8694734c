package fixedpoint

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeKnownWords(t *testing.T) {
	tests := []struct {
		v    float64
		want uint32
	}{
		{0, 0x00000},
		{1, 0x10000},
		{-1, 0xf0000},
		{0.5, 0x08000},
		{-0.5, 0xf8000},
		{math.Ldexp(1, -16), 0x00001},
		{-math.Ldexp(1, -16), 0xfffff},
		{7.9999847412109375, 0x7ffff},
		{-8, 0x80000},
	}
	for _, tt := range tests {
		got, err := Param.Encode(tt.v)
		if err != nil {
			t.Fatalf("Encode(%v): %v", tt.v, err)
		}
		if got != tt.want {
			t.Fatalf("Encode(%v) got=%s want=%s", tt.v, Param.Hex(got), Param.Hex(tt.want))
		}
	}
}

func TestRoundTripWithinResolution(t *testing.T) {
	formats := []Format{Param, {Bits: 24, Frac: 23}, {Bits: 16, Frac: 14}, {Bits: 32, Frac: 30}}
	for _, f := range formats {
		res := f.Resolution()
		for v := f.Min(); v <= f.Max(); v += (f.Max() - f.Min()) / 997 {
			w, err := f.Encode(v)
			if err != nil {
				t.Fatalf("S%d.%d Encode(%v): %v", f.Bits-f.Frac-1, f.Frac, v, err)
			}
			got := f.Decode(w)
			if math.Abs(got-v) > res {
				t.Fatalf("S%d.%d round trip %v got=%v (res %v)", f.Bits-f.Frac-1, f.Frac, v, got, res)
			}
		}
	}
}

func TestExactValuesDecodeExactly(t *testing.T) {
	for raw := int64(-(1 << 19)); raw < 1<<19; raw += 4099 {
		v := math.Ldexp(float64(raw), -16)
		w, err := Param.Encode(v)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if got := Param.Decode(w); got != v {
			t.Fatalf("Decode(Encode(%v)) got=%v", v, got)
		}
	}
}

func TestSaturation(t *testing.T) {
	w, clamped, err := Param.EncodeSaturated(100)
	if err != nil || !clamped || w != 0x7ffff {
		t.Fatalf("positive overflow got=%s clamped=%v err=%v", Param.Hex(w), clamped, err)
	}
	w, clamped, err = Param.EncodeSaturated(-100)
	if err != nil || !clamped || w != 0x80000 {
		t.Fatalf("negative overflow got=%s clamped=%v err=%v", Param.Hex(w), clamped, err)
	}
	if _, clamped, _ = Param.EncodeSaturated(1.5); clamped {
		t.Fatalf("in-range value reported as clamped")
	}
}

func TestExtremesDoNotLeakIntoNeighbours(t *testing.T) {
	payload := []float64{0.25, 1e9, -1e9, 0.25}
	words, err := Param.EncodeSlice(payload)
	if err != nil {
		t.Fatalf("EncodeSlice: %v", err)
	}
	for i, w := range words {
		if w&^uint32(0xfffff) != 0 {
			t.Fatalf("word %d has bits above the format: %08x", i, w)
		}
	}
	if Param.Decode(words[0]) != 0.25 || Param.Decode(words[3]) != 0.25 {
		t.Fatalf("neighbours corrupted: %v", words)
	}
	if Param.Decode(words[1]) != Param.Max() || Param.Decode(words[2]) != Param.Min() {
		t.Fatalf("extremes not saturated: %v", words)
	}
}

func TestRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := Param.Encode(v); !errors.Is(err, ErrNotFinite) {
			t.Fatalf("Encode(%v) err=%v", v, err)
		}
	}
	if _, err := Param.EncodeSlice([]float64{0, math.NaN()}); !errors.Is(err, ErrNotFinite) {
		t.Fatalf("EncodeSlice err=%v", err)
	}
}

func TestPayloadWordOrderIsReversed(t *testing.T) {
	values := []float64{0.125, -0.5, 1, 2.5, -3}
	words, err := Param.EncodePayload(values)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	first, _ := Param.Encode(values[0])
	last, _ := Param.Encode(values[len(values)-1])
	if words[0] != last || words[len(words)-1] != first {
		t.Fatalf("payload not reversed: %v", words)
	}
	got := Param.DecodePayload(words)
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("DecodePayload[%d] got=%v want=%v", i, got[i], values[i])
		}
	}
}

func TestHexWidth(t *testing.T) {
	if got := Param.Hex(0x1); got != "00001" {
		t.Fatalf("Hex got=%q", got)
	}
	f := Format{Bits: 24, Frac: 23}
	if got := f.Hex(0xabcdef); got != "abcdef" {
		t.Fatalf("Hex got=%q", got)
	}
}

func TestValidate(t *testing.T) {
	bad := []Format{{Bits: 1, Frac: 0}, {Bits: 33, Frac: 1}, {Bits: 20, Frac: 20}, {Bits: 20, Frac: -1}}
	for _, f := range bad {
		if err := f.Validate(); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("Validate(%+v) err=%v", f, err)
		}
	}
	if err := Param.Validate(); err != nil {
		t.Fatalf("Param.Validate: %v", err)
	}
}
