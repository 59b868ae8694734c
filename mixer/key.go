package mixer

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape is the addressing form of a parameter key.
type Shape uint8

const (
	ShapeBus Shape = iota + 1
	ShapeChannel
	ShapeFader
	ShapeChannelFilter
	ShapeBusFilter
)

func (s Shape) String() string {
	switch s {
	case ShapeBus:
		return "bus"
	case ShapeChannel:
		return "channel"
	case ShapeFader:
		return "fader"
	case ShapeChannelFilter:
		return "channel-filter"
	case ShapeBusFilter:
		return "bus-filter"
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

// Param names a parameter within a shape.
type Param uint8

const (
	ParamName Param = iota + 1
	ParamLevel
	ParamPan
	ParamMute
	ParamPFL
	ParamType
	ParamFreq
	ParamGain
	ParamQ
)

var paramNames = map[Param]string{
	ParamName:  "name",
	ParamLevel: "lvl",
	ParamPan:   "pan",
	ParamMute:  "mute",
	ParamPFL:   "pfl",
	ParamType:  "type",
	ParamFreq:  "freq",
	ParamGain:  "gain",
	ParamQ:     "q",
}

func (p Param) String() string {
	if s, ok := paramNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Param(%d)", uint8(p))
}

// Kind is the value kind p holds.
func (p Param) Kind() Kind {
	switch p {
	case ParamName, ParamType:
		return KindText
	case ParamMute, ParamPFL:
		return KindFlag
	}
	return KindNumber
}

func parseParam(s string) (Param, bool) {
	for p, name := range paramNames {
		if name == s {
			return p, true
		}
	}
	return 0, false
}

var shapeParams = map[Shape][]Param{
	ShapeBus:           {ParamName, ParamLevel, ParamPan},
	ShapeChannel:       {ParamName, ParamMute, ParamPFL},
	ShapeFader:         {ParamLevel, ParamPan},
	ShapeChannelFilter: {ParamType, ParamFreq, ParamGain, ParamQ},
	ShapeBusFilter:     {ParamType, ParamFreq, ParamGain, ParamQ},
}

// Accepts reports whether p is a parameter of shape s.
func (s Shape) Accepts(p Param) bool {
	for _, q := range shapeParams[s] {
		if q == p {
			return true
		}
	}
	return false
}

// Key identifies one parameter of the mixer state. Fields not used by the
// shape are zero, so keys compare structurally.
type Key struct {
	Shape   Shape
	Bus     int
	Channel int
	Filter  int
	Param   Param
}

func BusKey(bus int, p Param) Key { return Key{Shape: ShapeBus, Bus: bus, Param: p} }

func ChannelKey(ch int, p Param) Key { return Key{Shape: ShapeChannel, Channel: ch, Param: p} }

func FaderKey(bus, ch int, p Param) Key {
	return Key{Shape: ShapeFader, Bus: bus, Channel: ch, Param: p}
}

func ChannelFilterKey(ch, filt int, p Param) Key {
	return Key{Shape: ShapeChannelFilter, Channel: ch, Filter: filt, Param: p}
}

func BusFilterKey(bus, filt int, p Param) Key {
	return Key{Shape: ShapeBusFilter, Bus: bus, Filter: filt, Param: p}
}

// String renders the control path: b{bus}/{param}, c{ch}/{param},
// b{bus}/c{ch}/{param}, c{ch}/f{i}/{param} or b{bus}/f{i}/{param}.
func (k Key) String() string {
	switch k.Shape {
	case ShapeBus:
		return fmt.Sprintf("b%d/%s", k.Bus, k.Param)
	case ShapeChannel:
		return fmt.Sprintf("c%d/%s", k.Channel, k.Param)
	case ShapeFader:
		return fmt.Sprintf("b%d/c%d/%s", k.Bus, k.Channel, k.Param)
	case ShapeChannelFilter:
		return fmt.Sprintf("c%d/f%d/%s", k.Channel, k.Filter, k.Param)
	case ShapeBusFilter:
		return fmt.Sprintf("b%d/f%d/%s", k.Bus, k.Filter, k.Param)
	}
	return fmt.Sprintf("%s/%s", k.Shape, k.Param)
}

// ParseKey parses a control path produced by Key.String.
func ParseKey(path string) (Key, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownControl, path)
	}
	p, ok := parseParam(parts[len(parts)-1])
	if !ok {
		return Key{}, fmt.Errorf("%w: %q: unknown parameter", ErrUnknownControl, path)
	}

	first, firstIdx, err := parseIndexed(parts[0])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrUnknownControl, path, err)
	}
	var k Key
	if len(parts) == 2 {
		switch first {
		case 'b':
			k = BusKey(firstIdx, p)
		case 'c':
			k = ChannelKey(firstIdx, p)
		default:
			return Key{}, fmt.Errorf("%w: %q", ErrUnknownControl, path)
		}
	} else {
		second, secondIdx, err := parseIndexed(parts[1])
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q: %v", ErrUnknownControl, path, err)
		}
		switch {
		case first == 'b' && second == 'c':
			k = FaderKey(firstIdx, secondIdx, p)
		case first == 'c' && second == 'f':
			k = ChannelFilterKey(firstIdx, secondIdx, p)
		case first == 'b' && second == 'f':
			k = BusFilterKey(firstIdx, secondIdx, p)
		default:
			return Key{}, fmt.Errorf("%w: %q", ErrUnknownControl, path)
		}
	}
	if !k.Shape.Accepts(p) {
		return Key{}, fmt.Errorf("%w: %q: %s has no parameter %q", ErrUnknownControl, path, k.Shape, p)
	}
	return k, nil
}

func parseIndexed(s string) (byte, int, error) {
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("bad segment %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return 0, 0, fmt.Errorf("bad index in %q", s)
	}
	return s[0], n, nil
}
