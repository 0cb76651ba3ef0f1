package schema

import "pagebuilder/internal/domain"

// DefaultBreakpoints is the precedence used to collapse responsive values,
// most specific first.
var DefaultBreakpoints = []string{"desktop", "tablet", "mobile", "base"}

// PickBreakpoint returns the first variant in order that carries a value.
// Variants under keys missing from order are used only when nothing in order
// matched, and then in lexical key order so the result is stable.
func PickBreakpoint(order []string, variants domain.Responsive) (domain.Value, bool) {
	for _, bp := range order {
		if v, ok := variants[bp]; ok && !domain.IsEmpty(v) {
			return v, true
		}
	}
	var fallback string
	for bp, v := range variants {
		if domain.IsEmpty(v) {
			continue
		}
		if fallback == "" || bp < fallback {
			fallback = bp
		}
	}
	if fallback == "" {
		return nil, false
	}
	return variants[fallback], true
}
