package kv

import (
	"encoding/json"
	"fmt"
)

// Value is the cache's data type: either a Scalar string or an
// ordered List of Values, recursively nestable. Equality is
// structural; overwriting a key replaces its value wholesale.
type Value interface {
	// Equal reports structural equality with another value.
	Equal(other Value) bool

	isValue()
}

// Scalar is a single string value.
type Scalar string

// List is an ordered sequence of values.
type List []Value

func (Scalar) isValue() {}
func (List) isValue()   {}

// Equal implements Value.
func (s Scalar) Equal(other Value) bool {
	o, ok := other.(Scalar)
	return ok && s == o
}

// Equal implements Value.
func (l List) Equal(other Value) bool {
	o, ok := other.(List)
	if !ok || len(l) != len(o) {
		return false
	}
	for i := range l {
		if !l[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// MarshalValue encodes a value into its self-describing JSON form:
// {"scalar": s} or {"list": [...]}, so the two variants decode
// without an external schema.
func MarshalValue(v Value) ([]byte, error) {
	switch v := v.(type) {
	case Scalar:
		return json.Marshal(map[string]string{"scalar": string(v)})
	case List:
		raw := make([]json.RawMessage, len(v))
		for i, elem := range v {
			b, err := MarshalValue(elem)
			if err != nil {
				return nil, err
			}
			raw[i] = b
		}
		return json.Marshal(map[string][]json.RawMessage{"list": raw})
	case nil:
		return nil, fmt.Errorf("cannot marshal nil value")
	default:
		return nil, fmt.Errorf("cannot marshal value of type %T", v)
	}
}

// UnmarshalValue decodes a value from its self-describing JSON form.
// Malformed input, or input that is neither a scalar nor a list,
// surfaces as a deserialization error.
func UnmarshalValue(data []byte) (Value, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed value: %w", err)
	}
	if raw, ok := probe["scalar"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("malformed scalar value: %w", err)
		}
		return Scalar(s), nil
	}
	if raw, ok := probe["list"]; ok {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fmt.Errorf("malformed list value: %w", err)
		}
		list := make(List, len(elems))
		for i, elem := range elems {
			v, err := UnmarshalValue(elem)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	}
	return nil, fmt.Errorf("value is neither scalar nor list")
}
