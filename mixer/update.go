package mixer

import "fmt"

// Update is a single-parameter change. The concrete types are BusUpdate,
// ChannelUpdate, FaderUpdate and FilterUpdate.
type Update interface {
	Key() Key
	Value() Value
	update()
}

// BusUpdate changes a bus name, output level or pan.
type BusUpdate struct {
	Bus   int
	Param Param
	To    Value
}

// ChannelUpdate changes a channel name, mute or PFL flag.
type ChannelUpdate struct {
	Channel int
	Param   Param
	To      Value
}

// FaderUpdate changes the level or pan of a channel's send to a bus.
type FaderUpdate struct {
	Bus     int
	Channel int
	Param   Param
	To      Value
}

// FilterUpdate changes one parameter of a channel or bus filter. OnBus
// selects the bus bank; Index is the channel or bus number.
type FilterUpdate struct {
	OnBus  bool
	Index  int
	Filter int
	Param  Param
	To     Value
}

func (u BusUpdate) Key() Key { return BusKey(u.Bus, u.Param) }
func (u ChannelUpdate) Key() Key { return ChannelKey(u.Channel, u.Param) }
func (u FaderUpdate) Key() Key { return FaderKey(u.Bus, u.Channel, u.Param) }
func (u BusUpdate) Value() Value { return u.To }
func (u ChannelUpdate) Value() Value { return u.To }
func (u FaderUpdate) Value() Value { return u.To }
func (u FilterUpdate) Value() Value { return u.To }

func (u FilterUpdate) Key() Key {
	if u.OnBus {
		return BusFilterKey(u.Index, u.Filter, u.Param)
	}
	return ChannelFilterKey(u.Index, u.Filter, u.Param)
}

func (BusUpdate) update() {}
func (ChannelUpdate) update() {}
func (FaderUpdate) update() {}
func (FilterUpdate) update() {}

// UpdateFor builds the variant matching k's shape.
func UpdateFor(k Key, v Value) (Update, error) {
	switch k.Shape {
	case ShapeBus:
		return BusUpdate{Bus: k.Bus, Param: k.Param, To: v}, nil
	case ShapeChannel:
		return ChannelUpdate{Channel: k.Channel, Param: k.Param, To: v}, nil
	case ShapeFader:
		return FaderUpdate{Bus: k.Bus, Channel: k.Channel, Param: k.Param, To: v}, nil
	case ShapeChannelFilter:
		return FilterUpdate{Index: k.Channel, Filter: k.Filter, Param: k.Param, To: v}, nil
	case ShapeBusFilter:
		return FilterUpdate{OnBus: true, Index: k.Bus, Filter: k.Filter, Param: k.Param, To: v}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownControl, k)
}

// ParseUpdate parses a control path and a raw value, e.g. "b0/c3/lvl" and
// "-6".
func ParseUpdate(path, raw string) (Update, error) {
	k, err := ParseKey(path)
	if err != nil {
		return nil, err
	}
	v, err := ParseValue(k.Param.Kind(), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return UpdateFor(k, v)
}

// Apply validates u against the shape's parameter set and stores it.
func (s *State) Apply(u Update) error {
	var shape Shape
	switch u := u.(type) {
	case BusUpdate:
		shape = ShapeBus
	case ChannelUpdate:
		shape = ShapeChannel
	case FaderUpdate:
		shape = ShapeFader
	case FilterUpdate:
		shape = ShapeChannelFilter
		if u.OnBus {
			shape = ShapeBusFilter
		}
	default:
		return fmt.Errorf("%w: unsupported update %T", ErrUnknownControl, u)
	}
	k := u.Key()
	if !shape.Accepts(k.Param) {
		return fmt.Errorf("%w: %s has no parameter %q", ErrUnknownControl, shape, k.Param)
	}
	return s.Set(k, u.Value())
}
