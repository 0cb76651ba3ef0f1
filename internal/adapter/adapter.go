// Package adapter converts between the canonical page tree and the visual
// editor's entry tree. Conversion is lossy but never fails: unknown types pass
// through opaquely, malformed structured props degrade to raw strings and
// empty values are dropped.
package adapter

import (
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/schema"
)

// MaxDepth bounds recursion on pathological inputs.
const MaxDepth = 256

// TokenResolver looks up design-token references carried by editor entries.
type TokenResolver interface {
	ResolveToken(path string) (string, bool)
}

// Adapter converts trees using a type registry and a prop classifier.
// It holds no mutable state and is safe for concurrent use.
type Adapter struct {
	registry    *schema.Registry
	props       *schema.Classifier
	breakpoints []string
	tokens      TokenResolver
	newID       func() string
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithBreakpoints overrides the responsive precedence (most specific first).
func WithBreakpoints(order []string) Option {
	return func(a *Adapter) { a.breakpoints = append([]string(nil), order...) }
}

// WithTokenResolver resolves Ref values on the way into the canonical tree.
func WithTokenResolver(r TokenResolver) Option {
	return func(a *Adapter) { a.tokens = r }
}

// WithIDGenerator sets how ids are synthesized for entries that lack one.
func WithIDGenerator(fn func() string) Option {
	return func(a *Adapter) { a.newID = fn }
}

// New creates an Adapter.
func New(registry *schema.Registry, props *schema.Classifier, opts ...Option) *Adapter {
	a := &Adapter{
		registry:    registry,
		props:       props,
		breakpoints: schema.DefaultBreakpoints,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Default returns an Adapter over the default registry and prop tables.
func Default(opts ...Option) *Adapter {
	return New(schema.DefaultRegistry(), schema.DefaultClassifier(), opts...)
}

// Registry returns the type registry the adapter converts with.
func (a *Adapter) Registry() *schema.Registry { return a.registry }

// ─────────────────────────────────────────────────────────────
// Editor → canonical
// ─────────────────────────────────────────────────────────────

// ToCanonical converts an editor entry tree into a canonical node tree.
func (a *Adapter) ToCanonical(e domain.Entry) domain.Node {
	return a.toCanonical(e, 0)
}

func (a *Adapter) toCanonical(e domain.Entry, depth int) domain.Node {
	id := e.ID
	if id == "" {
		id = a.newID()
	}
	nodeType, ok := a.registry.Type(e.Component)
	if !ok {
		log.Printf("adapter: unknown component %q on entry %s, passing through", e.Component, id)
		return domain.Node{ID: id, Type: e.Component}
	}

	n := domain.Node{ID: id, Type: nodeType}
	for _, key := range sortedKeys(e.Fields) {
		if domain.IsMetaKey(key) || key == domain.KeyChildren {
			continue
		}
		v := a.resolve(e.Fields[key])
		if domain.IsEmpty(v) {
			continue
		}
		kind, name := a.props.ClassifyInbound(key, nodeType)
		switch kind {
		case schema.PropJSON:
			setProp(&n, name, a.decodeStructured(v, key, id))
		case schema.PropStyle:
			if s := styleString(v); s != "" {
				if n.Style == nil {
					n.Style = make(map[string]string)
				}
				n.Style[name] = s
			}
		case schema.PropNumeric:
			setProp(&n, name, decodeNumber(v, key, id))
		default:
			setProp(&n, name, a.plainValue(v, depth))
		}
	}

	switch slot := e.Fields[domain.KeyChildren].(type) {
	case nil:
	case domain.EntryList:
		if depth+1 >= MaxDepth {
			log.Printf("adapter: entry %s nests deeper than %d, dropping %d children", id, MaxDepth, len(slot))
			break
		}
		for _, child := range slot {
			n.Children = append(n.Children, a.toCanonical(child, depth+1))
		}
	default:
		log.Printf("adapter: entry %s has a non-list children slot (%T), ignoring", id, slot)
	}
	return n
}

// resolve unwraps responsive wrappers and token references.
func (a *Adapter) resolve(v domain.Value) domain.Value {
	for i := 0; i < 4; i++ {
		switch x := v.(type) {
		case domain.Responsive:
			picked, ok := schema.PickBreakpoint(a.breakpoints, x)
			if !ok {
				return nil
			}
			v = picked
		case domain.Ref:
			if a.tokens != nil {
				if resolved, ok := a.tokens.ResolveToken(string(x)); ok {
					return domain.String(resolved)
				}
			}
			return domain.String(string(x))
		default:
			return v
		}
	}
	return v
}

func (a *Adapter) decodeStructured(v domain.Value, key, id string) any {
	s, ok := v.(domain.String)
	if !ok {
		return domain.ToAny(v)
	}
	parsed, ok := schema.DecodeJSON(string(s))
	if !ok {
		log.Printf("adapter: entry %s: %s is not valid JSON, keeping raw string", id, key)
	}
	return parsed
}

func (a *Adapter) plainValue(v domain.Value, depth int) any {
	list, ok := v.(domain.EntryList)
	if !ok {
		return domain.ToAny(v)
	}
	nodes := make([]domain.Node, 0, len(list))
	for _, e := range list {
		if depth+1 >= MaxDepth {
			break
		}
		nodes = append(nodes, a.toCanonical(e, depth+1))
	}
	return nodes
}

func decodeNumber(v domain.Value, key, id string) any {
	switch x := v.(type) {
	case domain.String:
		n, ok := schema.DecodeNumeric(string(x))
		if !ok {
			log.Printf("adapter: entry %s: %s=%q is not numeric, keeping string", id, key, string(x))
		}
		return n
	case domain.Number:
		return x.Interface()
	default:
		return domain.ToAny(v)
	}
}

func styleString(v domain.Value) string {
	switch x := v.(type) {
	case domain.String:
		return string(x)
	case domain.Number:
		return schema.EncodeNumeric(x.Interface())
	case domain.Bool:
		return fmt.Sprint(bool(x))
	case domain.Raw:
		return string(x)
	default:
		return fmt.Sprint(domain.ToAny(v))
	}
}

// ─────────────────────────────────────────────────────────────
// Canonical → editor
// ─────────────────────────────────────────────────────────────

// ToExternal converts a canonical node tree into an editor entry tree.
func (a *Adapter) ToExternal(n domain.Node) domain.Entry {
	return a.toExternal(n, 0)
}

func (a *Adapter) toExternal(n domain.Node, depth int) domain.Entry {
	component, ok := a.registry.Component(n.Type)
	if !ok {
		log.Printf("adapter: unknown node type %q on node %s, passing through", n.Type, n.ID)
		return domain.Entry{ID: n.ID, Component: n.Type}
	}

	e := domain.Entry{ID: n.ID, Component: component}
	for _, prop := range sortedKeys(n.Props) {
		val := n.Props[prop]
		if isEmptyAny(val) {
			continue
		}
		kind, key := a.props.ClassifyOutbound(prop, n.Type)
		switch kind {
		case schema.PropJSON:
			s, err := schema.EncodeJSON(val)
			if err != nil {
				log.Printf("adapter: node %s: cannot encode %s: %v, dropping", n.ID, prop, err)
				continue
			}
			e.Set(key, domain.String(s))
		case schema.PropNumeric:
			e.Set(key, domain.String(schema.EncodeNumeric(val)))
		default:
			if nodes, ok := val.([]domain.Node); ok {
				e.Set(key, a.entryList(nodes, depth))
				continue
			}
			e.Set(key, domain.FromAny(val))
		}
	}
	for _, key := range sortedKeys(n.Style) {
		if s := n.Style[key]; s != "" {
			e.Set(key, domain.String(s))
		}
	}

	if len(n.Children) > 0 {
		if depth+1 >= MaxDepth {
			log.Printf("adapter: node %s nests deeper than %d, dropping %d children", n.ID, MaxDepth, len(n.Children))
		} else {
			e.Set(domain.KeyChildren, a.entryList(n.Children, depth))
		}
	}
	return e
}

func (a *Adapter) entryList(nodes []domain.Node, depth int) domain.EntryList {
	list := make(domain.EntryList, 0, len(nodes))
	for _, c := range nodes {
		list = append(list, a.toExternal(c, depth+1))
	}
	return list
}

// ── helpers ────────────────────────────────────────────────

func setProp(n *domain.Node, key string, v any) {
	if isEmptyAny(v) {
		return
	}
	if n.Props == nil {
		n.Props = make(map[string]any)
	}
	n.Props[key] = v
}

func isEmptyAny(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	default:
		return false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
