package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ohler55/ojg/oj"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// PropKind says how a prop crosses between the canonical and editor models.
type PropKind int

const (
	// PropPlain values pass through unchanged.
	PropPlain PropKind = iota
	// PropStyle values live in Node.Style rather than Node.Props.
	PropStyle
	// PropNumeric values are numbers canonically and decimal strings in the editor.
	PropNumeric
	// PropJSON values are structured canonically and JSON text in the editor.
	PropJSON
)

func (k PropKind) String() string {
	switch k {
	case PropStyle:
		return "style"
	case PropNumeric:
		return "numeric"
	case PropJSON:
		return "json"
	default:
		return "plain"
	}
}

// PropTables is the static classification data, keyed by canonical node type.
type PropTables struct {
	Style   map[string][]string
	Numeric map[string][]string
	// JSON maps node type -> canonical prop -> editor storage key.
	JSON map[string]map[string]string
}

// DefaultPropTables ships with DefaultBindings.
var DefaultPropTables = PropTables{
	Style: map[string][]string{
		"container": {"background", "border", "borderRadius", "maxWidth", "padding"},
		"card":      {"background", "border", "borderRadius", "shadow"},
		"stack":     {"background", "padding"},
		"row":       {"background", "padding"},
	},
	Numeric: map[string][]string{
		"heading": {"level"},
		"icon":    {"size"},
		"image":   {"size"},
		"grid":    {"columns"},
		"list":    {"maxItems"},
	},
	JSON: map[string]map[string]string{
		"table": {"columns": "columnsJson", "data": "rowsJson"},
		"chart": {"data": "seriesJson"},
		"list":  {"items": "itemsJson"},
		"tabs":  {"items": "tabsJson"},
	},
}

// Classifier answers per-(key, nodeType) questions for the tree adapter.
type Classifier struct {
	style    map[string]map[string]struct{}
	numeric  map[string]map[string]struct{}
	jsonKey  map[string]map[string]string
	jsonProp map[string]map[string]string
}

// NewClassifier indexes t for constant-time lookups.
func NewClassifier(t PropTables) *Classifier {
	c := &Classifier{
		style:    indexSets(t.Style),
		numeric:  indexSets(t.Numeric),
		jsonKey:  make(map[string]map[string]string, len(t.JSON)),
		jsonProp: make(map[string]map[string]string, len(t.JSON)),
	}
	for nodeType, keys := range t.JSON {
		c.jsonKey[nodeType] = lo.Assign(keys)
		c.jsonProp[nodeType] = lo.Invert(keys)
	}
	return c
}

// DefaultClassifier returns a classifier over DefaultPropTables.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultPropTables)
}

func indexSets(in map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(in))
	for nodeType, keys := range in {
		out[nodeType] = lo.SliceToMap(keys, func(k string) (string, struct{}) { return k, struct{}{} })
	}
	return out
}

// IsStyleOverride reports whether key belongs in Node.Style for nodeType.
func (c *Classifier) IsStyleOverride(key, nodeType string) bool {
	_, ok := c.style[nodeType][key]
	return ok
}

// IsNumericString reports whether key is a number serialized as a string.
func (c *Classifier) IsNumericString(key, nodeType string) bool {
	_, ok := c.numeric[nodeType][key]
	return ok
}

// JSONKey returns the editor storage key for a json-encoded canonical prop.
func (c *Classifier) JSONKey(prop, nodeType string) (string, bool) {
	k, ok := c.jsonKey[nodeType][prop]
	return k, ok
}

// JSONProp returns the canonical prop stored under an editor json key.
func (c *Classifier) JSONProp(key, nodeType string) (string, bool) {
	p, ok := c.jsonProp[nodeType][key]
	return p, ok
}

// ClassifyInbound decides how an editor key maps back onto nodeType, in
// json, style, numeric priority. The returned name is the canonical key.
func (c *Classifier) ClassifyInbound(key, nodeType string) (PropKind, string) {
	if prop, ok := c.JSONProp(key, nodeType); ok {
		return PropJSON, prop
	}
	if c.IsStyleOverride(key, nodeType) {
		return PropStyle, key
	}
	if c.IsNumericString(key, nodeType) {
		return PropNumeric, key
	}
	return PropPlain, key
}

// ClassifyOutbound decides how a canonical prop is written for nodeType.
// The returned name is the editor key.
func (c *Classifier) ClassifyOutbound(prop, nodeType string) (PropKind, string) {
	if key, ok := c.JSONKey(prop, nodeType); ok {
		return PropJSON, key
	}
	if c.IsNumericString(prop, nodeType) {
		return PropNumeric, prop
	}
	return PropPlain, prop
}

// EncodeNumeric renders a canonical number as the editor's decimal string.
func EncodeNumeric(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// DecodeNumeric parses an editor decimal string. Integral values come back
// as int. When s is not a number it is returned unchanged with ok=false.
func DecodeNumeric(s string) (v any, ok bool) {
	f, err := cast.ToFloat64E(strings.TrimSpace(s))
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f), true
	}
	return f, true
}

// EncodeJSON serializes a structured canonical value for a json-encoded key.
// Strings are assumed to be encoded already and pass through.
func EncodeJSON(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeJSON parses the text of a json-encoded key. On malformed input the
// raw string is returned with ok=false; it never fails harder than that.
func DecodeJSON(s string) (v any, ok bool) {
	parsed, err := oj.ParseString(s)
	if err != nil {
		return s, false
	}
	return normalizeParsed(parsed), true
}

// normalizeParsed maps ojg's int64 onto int so decoded integers compare
// equal to the ints canonical trees are built with.
func normalizeParsed(v any) any {
	switch x := v.(type) {
	case int64:
		return int(x)
	case []any:
		for i := range x {
			x[i] = normalizeParsed(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalizeParsed(x[k])
		}
		return x
	default:
		return v
	}
}
