package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node is one element of the host's canonical page tree.
type Node struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Props    map[string]any    `json:"props,omitempty"`
	Children []Node            `json:"children,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn stops descent into that node's children.
func (n Node) Walk(fn func(depth int, node Node) bool) {
	n.walk(0, fn)
}

func (n Node) walk(depth int, fn func(int, Node) bool) {
	if !fn(depth, n) {
		return
	}
	for _, c := range n.Children {
		c.walk(depth+1, fn)
	}
}

// Count returns the number of nodes in the tree rooted at n.
func (n Node) Count() int {
	total := 0
	n.Walk(func(int, Node) bool {
		total++
		return true
	})
	return total
}

// Validate checks the per-page invariants: every node has an id and no id repeats.
func (n Node) Validate() error {
	seen := make(map[string]struct{})
	var err error
	n.Walk(func(_ int, node Node) bool {
		if err != nil {
			return false
		}
		if node.ID == "" {
			err = fmt.Errorf("%w: node of type %q has no id", ErrInvalidTree, node.Type)
			return false
		}
		if _, dup := seen[node.ID]; dup {
			err = fmt.Errorf("%w: duplicate node id %q", ErrInvalidTree, node.ID)
			return false
		}
		seen[node.ID] = struct{}{}
		return true
	})
	return err
}

// UnmarshalJSON decodes integral prop numbers as int so a stored tree
// compares equal to the one that was saved.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var p plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	for k, v := range p.Props {
		p.Props[k] = normalizeNumbers(v)
	}
	*n = Node(p)
	return nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i)
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalizeNumbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalizeNumbers(x[k])
		}
		return x
	default:
		return v
	}
}
