package tags

import (
	"fmt"
	"strings"
)

// Parse reads a filter expression.
//
//	amenity=cafe              key equals value
//	shop=*                    key present
//	access!=private           key absent or different
//	amenity=cafe&cuisine=*    conjunction
//	shop=bakery|shop=butcher  disjunction; & binds tighter than |
//
// Whitespace around operators is ignored. Parentheses are not supported.
func Parse(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty tag filter")
	}

	var alternatives Or
	for _, alt := range strings.Split(expr, "|") {
		var conj And
		for _, term := range strings.Split(alt, "&") {
			tag, err := parseTag(term)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", expr, err)
			}
			conj = append(conj, tag)
		}
		if len(conj) == 1 {
			alternatives = append(alternatives, conj[0])
		} else {
			alternatives = append(alternatives, conj)
		}
	}

	if len(alternatives) == 1 {
		return alternatives[0], nil
	}
	return alternatives, nil
}

// MustParse is Parse for static expressions; it panics on error.
func MustParse(expr string) Filter {
	f, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return f
}

func parseTag(term string) (Tag, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Tag{}, fmt.Errorf("empty term")
	}

	negate := false
	idx := strings.Index(term, "!=")
	width := 2
	if idx >= 0 {
		negate = true
	} else {
		idx = strings.Index(term, "=")
		width = 1
	}
	if idx < 0 {
		return Tag{}, fmt.Errorf("term %q has no '=' operator", term)
	}

	key := strings.TrimSpace(term[:idx])
	value := strings.TrimSpace(term[idx+width:])
	if key == "" {
		return Tag{}, fmt.Errorf("term %q has an empty key", term)
	}
	if value == "" {
		return Tag{}, fmt.Errorf("term %q has an empty value (use * for any)", term)
	}
	return Tag{Key: key, Value: value, Negate: negate}, nil
}
