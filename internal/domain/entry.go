package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reserved keys of an external entry.
const (
	KeyID        = "id"
	KeyComponent = "component"
	KeyChildren  = "children"
)

// metaKeys hold identity or editor bookkeeping and are never props.
var metaKeys = map[string]struct{}{
	KeyID:        {},
	KeyComponent: {},
	"_meta":      {},
	"_key":       {},
}

// IsMetaKey reports whether key is identity/bookkeeping rather than a prop.
func IsMetaKey(key string) bool {
	_, ok := metaKeys[key]
	return ok
}

// Entry is one node of the external editor's document tree. On the wire it is
// a flat JSON object: id, component and one key per field.
type Entry struct {
	ID        string
	Component string
	Fields    map[string]Value
}

// Field returns the value stored under key.
func (e Entry) Field(key string) (Value, bool) {
	v, ok := e.Fields[key]
	return v, ok
}

// Set stores v under key, allocating the field map on first use.
func (e *Entry) Set(key string, v Value) {
	if e.Fields == nil {
		e.Fields = make(map[string]Value)
	}
	e.Fields[key] = v
}

// Children returns the entries in the children slot, if any.
func (e Entry) Children() EntryList {
	if list, ok := e.Fields[KeyChildren].(EntryList); ok {
		return list
	}
	return nil
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	out := Entry{ID: e.ID, Component: e.Component}
	if e.Fields != nil {
		out.Fields = make(map[string]Value, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = cloneValue(v)
		}
	}
	return out
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = encodeValue(v)
	}
	if e.ID != "" {
		out[KeyID] = e.ID
	}
	out[KeyComponent] = e.Component
	return json.Marshal(out)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = Entry{}
	for k, raw := range obj {
		switch k {
		case KeyID, KeyComponent:
			v, err := decodeValue(raw)
			if err != nil {
				return fmt.Errorf("entry %s: %w", k, err)
			}
			s := ""
			if v != nil {
				s = fmt.Sprint(ToAny(v))
			}
			if k == KeyID {
				e.ID = s
			} else {
				e.Component = s
			}
		default:
			v, err := decodeValue(raw)
			if err != nil {
				return fmt.Errorf("entry field %q: %w", k, err)
			}
			e.Set(k, v)
		}
	}
	return nil
}

// Provenance records where a cached entry came from.
type Provenance int

const (
	// ProvenanceNative entries were produced or validated by the editor itself.
	ProvenanceNative Provenance = iota
	// ProvenanceAdapterSeeded entries were synthesized from the canonical tree
	// as best-effort hydration and may hold literals where the editor expects refs.
	ProvenanceAdapterSeeded
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceNative:
		return "native"
	case ProvenanceAdapterSeeded:
		return "adapterSeeded"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Provenance) UnmarshalText(text []byte) error {
	switch string(text) {
	case "native":
		*p = ProvenanceNative
	case "adapterSeeded":
		*p = ProvenanceAdapterSeeded
	default:
		return fmt.Errorf("unknown provenance %q", text)
	}
	return nil
}

// DocRecord is a cached external document for one page.
type DocRecord struct {
	ID         string     `json:"id"`
	Version    int        `json:"version"`
	Entry      Entry      `json:"entry"`
	Provenance Provenance `json:"provenance"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
