package schema

import (
	"errors"
	"fmt"
	"sort"
)

var ErrRegistryConflict = errors.New("registry conflict")

// Binding maps one canonical node type to one editor component id.
type Binding struct {
	Type      string
	Component string
}

// DefaultBindings is the registry table shipped with the current component catalog.
// Bump it together with the set of renderable component types.
var DefaultBindings = []Binding{
	{Type: "stack", Component: "Column"},
	{Type: "row", Component: "Row"},
	{Type: "container", Component: "Box"},
	{Type: "grid", Component: "Grid"},
	{Type: "heading", Component: "Heading"},
	{Type: "text", Component: "Text"},
	{Type: "button", Component: "Button"},
	{Type: "image", Component: "Image"},
	{Type: "icon", Component: "Icon"},
	{Type: "link", Component: "Link"},
	{Type: "divider", Component: "Divider"},
	{Type: "card", Component: "Card"},
	{Type: "input", Component: "TextField"},
	{Type: "table", Component: "DataTable"},
	{Type: "list", Component: "List"},
	{Type: "tabs", Component: "Tabs"},
	{Type: "chart", Component: "Chart"},
}

// Registry is a static bidirectional map between canonical node types and
// editor component ids.
type Registry struct {
	toComponent map[string]string
	toType      map[string]string
}

// NewRegistry builds a registry, rejecting tables that are not one-to-one.
func NewRegistry(bindings []Binding) (*Registry, error) {
	r := &Registry{
		toComponent: make(map[string]string, len(bindings)),
		toType:      make(map[string]string, len(bindings)),
	}
	for _, b := range bindings {
		if b.Type == "" || b.Component == "" {
			return nil, fmt.Errorf("%w: empty binding %+v", ErrRegistryConflict, b)
		}
		if prev, ok := r.toComponent[b.Type]; ok {
			return nil, fmt.Errorf("%w: type %q bound to both %q and %q", ErrRegistryConflict, b.Type, prev, b.Component)
		}
		if prev, ok := r.toType[b.Component]; ok {
			return nil, fmt.Errorf("%w: component %q bound to both %q and %q", ErrRegistryConflict, b.Component, prev, b.Type)
		}
		r.toComponent[b.Type] = b.Component
		r.toType[b.Component] = b.Type
	}
	return r, nil
}

// DefaultRegistry returns the registry for DefaultBindings.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultBindings)
	if err != nil {
		panic(err)
	}
	return r
}

// Component returns the editor component id for a canonical type.
func (r *Registry) Component(nodeType string) (string, bool) {
	c, ok := r.toComponent[nodeType]
	return c, ok
}

// Type returns the canonical type for an editor component id.
func (r *Registry) Type(component string) (string, bool) {
	t, ok := r.toType[component]
	return t, ok
}

// Types lists the registered canonical types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.toComponent))
	for t := range r.toComponent {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
