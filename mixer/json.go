package mixer

import (
	"encoding/json"
	"fmt"
)

const metadataKey = "metadata"

// MarshalJSON encodes the state as one flat object: control paths map to
// scalar values and "metadata" to the topology description.
func (s *State) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(s.values)+1)
	for k, v := range s.values {
		obj[k.String()] = v
	}
	obj[metadataKey] = s.meta
	return json.Marshal(obj)
}

// UnmarshalJSON decodes the flat object written by MarshalJSON. Any
// malformed entry makes the whole snapshot invalid.
func (s *State) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	rawMeta, ok := obj[metadataKey]
	if !ok {
		return fmt.Errorf("%w: no metadata", ErrInvalidSnapshot)
	}
	var meta Metadata
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return fmt.Errorf("%w: metadata: %v", ErrInvalidSnapshot, err)
	}

	values := make(map[Key]Value, len(obj)-1)
	for path, raw := range obj {
		if path == metadataKey {
			continue
		}
		k, err := ParseKey(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		var v Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, path, err)
		}
		values[k] = v
	}
	s.meta = meta
	s.values = values
	return nil
}
