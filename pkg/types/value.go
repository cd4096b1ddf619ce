// Package types defines the core value types shared by every stage of the
// Axiom pipeline: static types, runtime values, diagnostics and faults.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type is the static type of an Axiom expression.
type Type int

const (
	TypeInt  Type = iota // 64-bit signed integer
	TypeTime             // opaque logical-clock tick
)

// String returns the type name as shown in diagnostics.
func (t Type) String() string {
	switch t {
	case TypeInt:
		return "Int"
	case TypeTime:
		return "Time"
	default:
		return "unknown"
	}
}

// Value is an Axiom runtime value. Its tag mirrors Type.
type Value struct {
	typ Type
	n   int64
}

// NewInt creates an Int value.
func NewInt(n int64) Value {
	return Value{typ: TypeInt, n: n}
}

// NewTime creates a Time value for the given tick.
func NewTime(tick int64) Value {
	return Value{typ: TypeTime, n: tick}
}

// Type returns the value's type tag.
func (v Value) Type() Type {
	return v.typ
}

// AsInt returns the integer payload. Only meaningful for TypeInt.
func (v Value) AsInt() int64 {
	return v.n
}

// AsTime returns the tick payload. Only meaningful for TypeTime.
func (v Value) AsTime() int64 {
	return v.n
}

// Equal reports whether two values have the same tag and payload.
func (v Value) Equal(other Value) bool {
	return v.typ == other.typ && v.n == other.n
}

// String renders the value as Int(7) or Time(0).
func (v Value) String() string {
	return fmt.Sprintf("%s(%d)", v.typ, v.n)
}

type valueJSON struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
}

// MarshalJSON encodes the value as {"type":"Int","value":7}.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Type: v.typ.String(), Value: v.n})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw valueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "Int":
		*v = NewInt(raw.Value)
	case "Time":
		*v = NewTime(raw.Value)
	default:
		return fmt.Errorf("unknown value type %q", raw.Type)
	}
	return nil
}

// BindingsFromJSON decodes a run argument into variable bindings.
// The argument must be a JSON object whose members are integers (Int)
// or objects of the form {"time": n} (Time). An empty argument yields
// no bindings.
func BindingsFromJSON(arg string) (map[string]Value, error) {
	if len(bytes.TrimSpace([]byte(arg))) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("argument must be a JSON object: %w", err)
	}

	bindings := make(map[string]Value, len(raw))
	for name, item := range raw {
		v, err := bindingValue(item)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		bindings[name] = v
	}
	return bindings, nil
}

func bindingValue(item interface{}) (Value, error) {
	switch val := item.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("%s is not a 64-bit integer", val)
		}
		return NewInt(n), nil
	case map[string]interface{}:
		tick, ok := val["time"].(json.Number)
		if !ok || len(val) != 1 {
			return Value{}, fmt.Errorf("time binding must be {\"time\": <integer>}")
		}
		n, err := tick.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("%s is not a 64-bit integer", tick)
		}
		return NewTime(n), nil
	default:
		return Value{}, fmt.Errorf("unsupported binding of type %T", item)
	}
}
