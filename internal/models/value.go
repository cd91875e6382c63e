package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindUnset ValueKind = iota
	KindString
	KindBool
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "unset"
	}
}

// AllMarker is the single entry of the list form of a checkbox parameter.
const AllMarker = "All"

// Value is a parameter value. Checkbox-style parameters are either a Bool or
// a List holding AllMarker depending on the transaction kind, so the variant
// is kept explicit instead of collapsing into interface{}.
type Value struct {
	kind ValueKind
	str  string
	b    bool
	list []string
}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func ListValue(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// AllValue returns the list form ["All"].
func AllValue() Value { return ListValue(AllMarker) }

func (v Value) Kind() ValueKind { return v.kind }

// IsSet reports whether v carries a usable value. Empty strings and empty
// lists count as unset.
func (v Value) IsSet() bool {
	switch v.kind {
	case KindString:
		return v.str != ""
	case KindBool:
		return true
	case KindList:
		return len(v.list) > 0
	default:
		return false
	}
}

func (v Value) Str() string { return v.str }

func (v Value) Bool() bool { return v.b }

func (v Value) List() []string {
	if v.list == nil {
		return nil
	}
	cp := make([]string, len(v.list))
	copy(cp, v.list)
	return cp
}

// Interface returns the plain Go value used in JSON documents.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindList:
		return v.List()
	default:
		return nil
	}
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindList:
		return fmt.Sprintf("%v", v.list)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindUnset {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	parsed, err := ValueFromInterface(json.RawMessage(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromInterface converts a decoded JSON/YAML value into a Value.
// Numbers are kept as their textual form.
func ValueFromInterface(raw interface{}) (Value, error) {
	if msg, ok := raw.(json.RawMessage); ok {
		var decoded interface{}
		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return Value{}, fmt.Errorf("decode value: %w", err)
		}
		raw = decoded
	}

	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return StringValue(t.String()), nil
	case float64:
		return StringValue(fmt.Sprintf("%v", t)), nil
	case int:
		return StringValue(fmt.Sprintf("%d", t)), nil
	case []string:
		return ListValue(t...), nil
	case []interface{}:
		items := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("list values must be strings, got %T", item)
			}
			items = append(items, s)
		}
		return ListValue(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}
