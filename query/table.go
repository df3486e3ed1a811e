package query

import (
	"fmt"
	"sort"

	"github.com/jonwraymond/querysync/key"
	"github.com/jonwraymond/querysync/policy"
)

// Table maps a mutation kind to the key prefixes a successful mutation of
// that kind invalidates. It is declared once and never changes at runtime.
type Table map[string][]key.Key

// Validate checks that every kind is named and every prefix refers to a
// resource registered in reg.
func (t Table) Validate(reg *policy.Registry) error {
	for _, kind := range t.Kinds() {
		if kind == "" {
			return fmt.Errorf("%w: empty mutation kind", ErrInvalidConfig)
		}
		for _, p := range t[kind] {
			if p.IsZero() {
				return fmt.Errorf("%w: zero key in mutation %q", ErrInvalidConfig, kind)
			}
			if !reg.Has(p.Resource()) {
				return fmt.Errorf("%w: %q in mutation %q", ErrUnknownResource, p.Resource(), kind)
			}
		}
	}
	return nil
}

// Prefixes returns a copy of the prefixes declared for kind.
func (t Table) Prefixes(kind string) ([]key.Key, bool) {
	prefixes, ok := t[kind]
	if !ok {
		return nil, false
	}
	return append([]key.Key(nil), prefixes...), true
}

// Kinds returns the declared mutation kinds in sorted order.
func (t Table) Kinds() []string {
	kinds := make([]string, 0, len(t))
	for k := range t {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
