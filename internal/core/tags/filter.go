// Package tags models OSM tag filters: the per-layer selection of features and
// their logical combination into a single outbound Overpass query.
package tags

import (
	"errors"
	"fmt"
	"strings"
)

// Filter selects OSM objects by their tags.
type Filter interface {
	// Matches reports whether an object with the given tags is selected.
	Matches(tags map[string]string) bool
	// Selectors returns the filter in disjunctive normal form: every element
	// is one conjunction of Overpass tag selectors, e.g. `["amenity"="cafe"]["cuisine"]`.
	Selectors() []string
	String() string
}

// Tag matches a single key. Value "*" (or empty) means the key must be present.
// With Negate set the tag must be absent or differ from Value.
type Tag struct {
	Key    string
	Value  string
	Negate bool
}

func (t Tag) anyValue() bool { return t.Value == "" || t.Value == "*" }

func (t Tag) Matches(tags map[string]string) bool {
	v, ok := tags[t.Key]
	if t.anyValue() {
		return ok != t.Negate
	}
	return (ok && v == t.Value) != t.Negate
}

func (t Tag) Selectors() []string {
	k := quote(t.Key)
	switch {
	case t.anyValue() && t.Negate:
		return []string{fmt.Sprintf("[!%s]", k)}
	case t.anyValue():
		return []string{fmt.Sprintf("[%s]", k)}
	case t.Negate:
		return []string{fmt.Sprintf("[%s!=%s]", k, quote(t.Value))}
	default:
		return []string{fmt.Sprintf("[%s=%s]", k, quote(t.Value))}
	}
}

func (t Tag) String() string {
	op := "="
	if t.Negate {
		op = "!="
	}
	v := t.Value
	if v == "" {
		v = "*"
	}
	return t.Key + op + v
}

// And matches when every member matches.
type And []Filter

func (a And) Matches(tags map[string]string) bool {
	for _, f := range a {
		if !f.Matches(tags) {
			return false
		}
	}
	return true
}

// Selectors distributes the conjunction over the members' disjunctions.
func (a And) Selectors() []string {
	acc := []string{""}
	for _, f := range a {
		var next []string
		for _, prefix := range acc {
			for _, s := range f.Selectors() {
				next = append(next, prefix+s)
			}
		}
		acc = next
	}
	return acc
}

func (a And) String() string {
	parts := make([]string, len(a))
	for i, f := range a {
		s := f.String()
		if _, ok := f.(Or); ok {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, "&")
}

// Or matches when any member matches. An empty Or matches nothing.
type Or []Filter

func (o Or) Matches(tags map[string]string) bool {
	for _, f := range o {
		if f.Matches(tags) {
			return true
		}
	}
	return false
}

// Selectors returns the union of the members' selectors without duplicates,
// preserving first-seen order.
func (o Or) Selectors() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range o {
		for _, s := range f.Selectors() {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func (o Or) String() string {
	parts := make([]string, len(o))
	for i, f := range o {
		parts[i] = f.String()
	}
	return strings.Join(parts, "|")
}

// ErrNegationOnly is returned for a filter with an alternative made of
// negations only. Overpass needs at least one positive condition per statement.
var ErrNegationOnly = errors.New("alternative has no positive tag")

// Queryable checks that every alternative of f, in disjunctive normal form,
// contains at least one positive tag.
func Queryable(f Filter) error {
	for _, conj := range conjunctions(f) {
		positive := false
		for _, t := range conj {
			if !t.Negate {
				positive = true
				break
			}
		}
		if !positive {
			return fmt.Errorf("%w: %s", ErrNegationOnly, And(tagFilters(conj)).String())
		}
	}
	return nil
}

// conjunctions mirrors Selectors on the tag level.
func conjunctions(f Filter) [][]Tag {
	switch v := f.(type) {
	case Tag:
		return [][]Tag{{v}}
	case And:
		acc := [][]Tag{nil}
		for _, m := range v {
			var next [][]Tag
			for _, prefix := range acc {
				for _, c := range conjunctions(m) {
					next = append(next, append(append([]Tag(nil), prefix...), c...))
				}
			}
			acc = next
		}
		return acc
	case Or:
		var out [][]Tag
		for _, m := range v {
			out = append(out, conjunctions(m)...)
		}
		return out
	default:
		return nil
	}
}

func tagFilters(ts []Tag) []Filter {
	out := make([]Filter, len(ts))
	for i, t := range ts {
		out[i] = t
	}
	return out
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
