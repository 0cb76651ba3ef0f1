package adapter

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
	"github.com/ohler55/ojg/jp"

	"pagebuilder/internal/domain"
)

// Difference is one field that did not survive a round trip.
// Path is a JSONPath into the canonical node, e.g. $.children[0].props.label.
type Difference struct {
	Path string `json:"path"`
	Want any    `json:"want"`
	Got  any    `json:"got"`
}

// Report is the result of a round-trip self-check.
type Report struct {
	Passed      bool         `json:"passed"`
	Differences []Difference `json:"differences,omitempty"`
	External    domain.Entry `json:"external"`
	Result      domain.Node  `json:"result"`
}

// RoundTrip converts n to an editor entry and back, then diffs the result
// against n. Any node type added to the registry should pass this before it ships.
func (a *Adapter) RoundTrip(n domain.Node) Report {
	ext := a.ToExternal(n)
	back := a.ToCanonical(ext)
	diffs := Diff(n, back)
	return Report{
		Passed:      len(diffs) == 0,
		Differences: diffs,
		External:    ext,
		Result:      back,
	}
}

// Diff compares two canonical trees field by field and returns every path
// that differs. Numbers compare by value, so 3 and 3.0 are equal.
func Diff(want, got domain.Node) []Difference {
	var out []Difference
	diffNode(jp.R(), want, got, &out)
	return out
}

func diffNode(path jp.Expr, want, got domain.Node, out *[]Difference) {
	if want.ID != got.ID {
		*out = append(*out, Difference{Path: at(path, jp.Child("id")).String(), Want: want.ID, Got: got.ID})
	}
	if want.Type != got.Type {
		*out = append(*out, Difference{Path: at(path, jp.Child("type")).String(), Want: want.Type, Got: got.Type})
	}
	diffProps(at(path, jp.Child("props")), want.Props, got.Props, out)
	diffStyle(at(path, jp.Child("style")), want.Style, got.Style, out)

	shared := min(len(want.Children), len(got.Children))
	for i := 0; i < shared; i++ {
		diffNode(at(path, jp.Child("children"), jp.Nth(i)), want.Children[i], got.Children[i], out)
	}
	for i := shared; i < len(want.Children); i++ {
		*out = append(*out, Difference{Path: at(path, jp.Child("children"), jp.Nth(i)).String(), Want: want.Children[i].ID})
	}
	for i := shared; i < len(got.Children); i++ {
		*out = append(*out, Difference{Path: at(path, jp.Child("children"), jp.Nth(i)).String(), Got: got.Children[i].ID})
	}
}

func diffProps(path jp.Expr, want, got map[string]any, out *[]Difference) {
	for _, k := range unionKeys(want, got) {
		w, wok := want[k]
		g, gok := got[k]
		if wok && gok && valuesEqual(w, g) {
			continue
		}
		*out = append(*out, Difference{Path: at(path, jp.Child(k)).String(), Want: w, Got: g})
	}
}

func diffStyle(path jp.Expr, want, got map[string]string, out *[]Difference) {
	for _, k := range unionKeys(want, got) {
		w, wok := want[k]
		g, gok := got[k]
		if wok == gok && w == g {
			continue
		}
		*out = append(*out, Difference{Path: at(path, jp.Child(k)).String(), Want: w, Got: g})
	}
}

// valuesEqual compares through a JSON normalization so numeric width and
// concrete slice/map types do not matter.
func valuesEqual(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b))
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]V, len(a)+len(b))
	for k, v := range a {
		seen[k] = v
	}
	for k, v := range b {
		seen[k] = v
	}
	return sortedKeys(seen)
}

// at extends path without sharing its backing array.
func at(path jp.Expr, frags ...jp.Frag) jp.Expr {
	out := make(jp.Expr, 0, len(path)+len(frags))
	out = append(out, path...)
	return append(out, frags...)
}
