package tags_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/osmfj/MapComplete/internal/core/tags"
)

func TestParse_SingleTag(t *testing.T) {
	f, err := tags.Parse("amenity=cafe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := tags.Tag{Key: "amenity", Value: "cafe"}
	if f != want {
		t.Errorf("expected %#v, got %#v", want, f)
	}
}

func TestParse_Precedence(t *testing.T) {
	f, err := tags.Parse("amenity=cafe & cuisine=* | shop != bakery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	or, ok := f.(tags.Or)
	if !ok || len(or) != 2 {
		t.Fatalf("expected Or of two alternatives, got %#v", f)
	}
	if _, ok := or[0].(tags.And); !ok {
		t.Errorf("expected first alternative to be And, got %#v", or[0])
	}
	if got := f.String(); got != "amenity=cafe&cuisine=*|shop!=bakery" {
		t.Errorf("unexpected String(): %q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, expr := range []string{"", "amenity", "=cafe", "amenity=", "a=b&", "a=b||c=d"} {
		if _, err := tags.Parse(expr); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
}

func TestFilter_Matches(t *testing.T) {
	f := tags.MustParse("amenity=cafe&cuisine=*|shop=*&access!=private")

	cases := []struct {
		tags map[string]string
		want bool
	}{
		{map[string]string{"amenity": "cafe", "cuisine": "coffee_shop"}, true},
		{map[string]string{"amenity": "cafe"}, false},
		{map[string]string{"shop": "bakery"}, true},
		{map[string]string{"shop": "bakery", "access": "private"}, false},
		{map[string]string{"shop": "bakery", "access": "yes"}, true},
		{map[string]string{}, false},
	}
	for _, tc := range cases {
		if got := f.Matches(tc.tags); got != tc.want {
			t.Errorf("Matches(%v): expected %v, got %v", tc.tags, tc.want, got)
		}
	}
}

func TestFilter_Selectors(t *testing.T) {
	f := tags.And{
		tags.Tag{Key: "amenity", Value: "cafe"},
		tags.Or{tags.Tag{Key: "cuisine", Value: "*"}, tags.Tag{Key: "wifi", Value: "no", Negate: true}},
	}
	want := []string{
		`["amenity"="cafe"]["cuisine"]`,
		`["amenity"="cafe"]["wifi"!="no"]`,
	}
	if got := f.Selectors(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOr_SelectorsDeduplicated(t *testing.T) {
	cafe := tags.Tag{Key: "amenity", Value: "cafe"}
	f := tags.Or{cafe, tags.Or{cafe, tags.Tag{Key: "shop", Value: "*"}}}
	want := []string{`["amenity"="cafe"]`, `["shop"]`}
	if got := f.Selectors(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTag_SelectorQuoting(t *testing.T) {
	f := tags.Tag{Key: `name"x`, Value: `a\b`}
	want := []string{`["name\"x"="a\\b"]`}
	if got := f.Selectors(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestQueryable(t *testing.T) {
	tests := []struct {
		expr string
		ok   bool
	}{
		{"amenity=cafe", true},
		{"shop=*&name!=Aldi", true},
		{"access!=private&amenity=bench", true},
		{"access!=private", false},
		{"name!=*", false},
		{"amenity=cafe|access!=private", false},
		{"access!=private&name!=*|shop=bakery", false},
	}
	for _, tt := range tests {
		err := tags.Queryable(tags.MustParse(tt.expr))
		if tt.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tt.expr, err)
		}
		if !tt.ok && !errors.Is(err, tags.ErrNegationOnly) {
			t.Errorf("%q: expected ErrNegationOnly, got %v", tt.expr, err)
		}
	}
}

func TestQueryable_NestedAnd(t *testing.T) {
	// (shop=* | access!=private) & name!=Aldi has a negation-only alternative.
	f := tags.And{tags.Or{tags.Tag{Key: "shop", Value: "*"}, tags.Tag{Key: "access", Value: "private", Negate: true}}, tags.Tag{Key: "name", Value: "Aldi", Negate: true}}
	if err := tags.Queryable(f); !errors.Is(err, tags.ErrNegationOnly) {
		t.Errorf("expected ErrNegationOnly, got %v", err)
	}
}
