package dsp

import "math"

// MinFaderDB is the "off" floor for faders and meter readings.
const MinFaderDB = -180.0

// DefaultPanLawDB is the attenuation of each side of a centered source
// relative to a hard-panned one.
const DefaultPanLawDB = 3.0

// MeterScale maps a metering word to full-scale power: a full-scale sine has
// mean power 0.5 and reads 0 dBFS.
const MeterScale = 2.0

// DBToGain converts decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// PowerToDB converts a linear power sample from the metering path to dBFS.
// Non-positive powers read as MinFaderDB.
func PowerToDB(power float64) float64 {
	if !(power > 0) {
		return MinFaderDB
	}
	db := 20 * math.Log10(math.Sqrt(power*MeterScale))
	if db < MinFaderDB {
		return MinFaderDB
	}
	return db
}

// PanLaw is a constant-power pan law. Pan runs from -0.5 (hard left) to
// 0.5 (hard right).
type PanLaw struct {
	exponent float64
}

// NewPanLaw builds a law where a centered source sits lawDB below a
// hard-panned one on each side.
func NewPanLaw(lawDB float64) PanLaw {
	return PanLaw{exponent: lawDB / (20 * math.Log10(2))}
}

// Exponent is k in left = (0.5-pan)^k, right = (0.5+pan)^k.
func (p PanLaw) Exponent() float64 { return p.exponent }

// Gains returns the left and right multipliers for pan. Pan is clamped to
// [-0.5, 0.5].
func (p PanLaw) Gains(pan float64) (left, right float64) {
	if pan < -0.5 {
		pan = -0.5
	}
	if pan > 0.5 {
		pan = 0.5
	}
	return math.Pow(0.5-pan, p.exponent), math.Pow(0.5+pan, p.exponent)
}

// StateVariableParams returns the two words of a Chamberlin state-variable
// low-pass as the metering block expects them: frequency factor
// f = 2 sin(pi fc/fs) and damping 1/q.
func StateVariableParams(fc, q, sampleRate float64) [2]float64 {
	return [2]float64{2 * math.Sin(math.Pi*fc/sampleRate), 1 / q}
}

// StateVariable is a Chamberlin state-variable filter, the software model of
// the meter smoothing block.
type StateVariable struct {
	f, damp   float64
	low, band float64
}

// NewStateVariable creates a filter from StateVariableParams output.
func NewStateVariable(params [2]float64) *StateVariable {
	return &StateVariable{f: params[0], damp: params[1]}
}

// ProcessLowpass advances the filter by one sample and returns the low-pass
// output.
func (s *StateVariable) ProcessLowpass(x float64) float64 {
	s.low += s.f * s.band
	high := x - s.low - s.damp*s.band
	s.band += s.f * high
	return s.low
}

// Reset clears the filter state.
func (s *StateVariable) Reset() {
	s.low, s.band = 0, 0
}
