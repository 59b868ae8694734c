package mixer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the dynamic type held by a Value.
type Kind uint8

const (
	KindNumber Kind = iota + 1
	KindText
	KindFlag
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindFlag:
		return "flag"
	}
	return "invalid"
}

// Value is a parameter value: a number, a text or a flag. The zero Value is
// invalid.
type Value struct {
	kind Kind
	num  float64
	text string
	flag bool
}

func Number(v float64) Value { return Value{kind: KindNumber, num: v} }
func Text(s string) Value { return Value{kind: KindText, text: s} }
func Flag(b bool) Value { return Value{kind: KindFlag, flag: b} }

func (v Value) Kind() Kind { return v.kind }

// Number returns the numeric value; ok is false for other kinds.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Text returns the text value; ok is false for other kinds.
func (v Value) Text() (string, bool) { return v.text, v.kind == KindText }

// Flag returns the flag value; ok is false for other kinds.
func (v Value) Flag() (bool, bool) { return v.flag, v.kind == KindFlag }

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.text)
	case KindFlag:
		return strconv.FormatBool(v.flag)
	}
	return "<invalid>"
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("%w: non-finite number %v", ErrInvalidValue, v.num)
		}
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	case KindFlag:
		return json.Marshal(v.flag)
	}
	return nil, fmt.Errorf("%w: zero value", ErrInvalidValue)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case float64:
		*v = Number(x)
	case string:
		*v = Text(x)
	case bool:
		*v = Flag(x)
	default:
		return fmt.Errorf("%w: unsupported JSON value %s", ErrInvalidValue, string(b))
	}
	return nil
}

// ParseValue parses raw as a value of kind k. Text may be quoted.
func ParseValue(k Kind, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	switch k {
	case KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%w: %q is not a finite number", ErrInvalidValue, raw)
		}
		return Number(f), nil
	case KindFlag:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a flag", ErrInvalidValue, raw)
		}
		return Flag(b), nil
	case KindText:
		if s, err := strconv.Unquote(raw); err == nil {
			return Text(s), nil
		}
		return Text(raw), nil
	}
	return Value{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidValue, k)
}
