package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cast"
)

// Value is a field value inside an external editor entry. The set of
// implementations is closed: String, Number, Bool, Responsive, EntryList, Ref
// and Raw. A nil Value stands for an explicit JSON null.
type Value interface {
	isValue()
}

type (
	String string
	Number float64
	Bool   bool
	// Responsive holds per-breakpoint variants of a single logical value.
	Responsive map[string]Value
	// EntryList is an ordered list of nested entries (e.g. the children slot).
	EntryList []Entry
	// Ref is an indirection into editor-managed data such as a design token.
	Ref string
	// Raw is any other JSON value, carried through untouched.
	Raw json.RawMessage
)

func (String) isValue()     {}
func (Number) isValue()     {}
func (Bool) isValue()       {}
func (Responsive) isValue() {}
func (EntryList) isValue()  {}
func (Ref) isValue()        {}
func (Raw) isValue()        {}

const (
	responsiveTag = "$responsive"
	refTag        = "$ref"
)

// Interface returns n as an int when it holds an integral value, else as float64.
func (n Number) Interface() any {
	f := float64(n)
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

// FromAny lifts a canonical Go value into the external value model.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return nil
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return Number(f)
		}
		return String(x.String())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return Number(cast.ToFloat64(x))
	case []Entry:
		return EntryList(x)
	case json.RawMessage:
		return Raw(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return String(fmt.Sprint(x))
		}
		return Raw(data)
	}
}

// ToAny lowers an external value into a plain Go value.
func ToAny(v Value) any {
	switch x := v.(type) {
	case nil:
		return nil
	case String:
		return string(x)
	case Number:
		return x.Interface()
	case Bool:
		return bool(x)
	case Ref:
		return string(x)
	case EntryList:
		return []Entry(x)
	case Responsive:
		out := make(map[string]any, len(x))
		for bp, variant := range x {
			out[bp] = ToAny(variant)
		}
		return out
	case Raw:
		var out any
		if err := json.Unmarshal(x, &out); err != nil {
			return string(x)
		}
		return out
	default:
		return nil
	}
}

// IsEmpty reports whether v carries no information (null or empty string).
func IsEmpty(v Value) bool {
	switch x := v.(type) {
	case nil:
		return true
	case String:
		return x == ""
	default:
		return false
	}
}

func encodeValue(v Value) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Responsive:
		variants := make(map[string]any, len(x))
		for bp, variant := range x {
			variants[bp] = encodeValue(variant)
		}
		return map[string]any{responsiveTag: variants}
	case Ref:
		return map[string]string{refTag: string(x)}
	case Raw:
		if len(x) == 0 {
			return nil
		}
		return json.RawMessage(x)
	case EntryList:
		if x == nil {
			return []Entry{}
		}
		return []Entry(x)
	default:
		return x
	}
}

func decodeValue(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case 'n':
		return nil, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case '[':
		return decodeArray(trimmed)
	case '{':
		return decodeObject(trimmed)
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, err
		}
		return Number(f), nil
	}
}

// decodeArray yields an EntryList when every element looks like an entry.
func decodeArray(data []byte) (Value, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	entries := make(EntryList, 0, len(items))
	for _, item := range items {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(item, &probe); err != nil {
			return Raw(append([]byte(nil), data...)), nil
		}
		if _, ok := probe["component"]; !ok {
			return Raw(append([]byte(nil), data...)), nil
		}
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeObject(data []byte) (Value, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if len(obj) == 1 {
		if variants, ok := obj[responsiveTag]; ok {
			var raw map[string]json.RawMessage
			if err := json.Unmarshal(variants, &raw); err != nil {
				return nil, fmt.Errorf("responsive wrapper: %w", err)
			}
			out := make(Responsive, len(raw))
			for bp, r := range raw {
				v, err := decodeValue(r)
				if err != nil {
					return nil, fmt.Errorf("responsive variant %q: %w", bp, err)
				}
				out[bp] = v
			}
			return out, nil
		}
		if ref, ok := obj[refTag]; ok {
			var path string
			if err := json.Unmarshal(ref, &path); err == nil {
				return Ref(path), nil
			}
		}
	}
	return Raw(append([]byte(nil), data...)), nil
}

func cloneValue(v Value) Value {
	switch x := v.(type) {
	case Responsive:
		out := make(Responsive, len(x))
		for bp, variant := range x {
			out[bp] = cloneValue(variant)
		}
		return out
	case EntryList:
		out := make(EntryList, len(x))
		for i, e := range x {
			out[i] = e.Clone()
		}
		return out
	case Raw:
		return Raw(append([]byte(nil), x...))
	default:
		return x
	}
}
