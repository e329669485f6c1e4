package usecases_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
	"github.com/osmfj/MapComplete/internal/core/usecases"
)

func TestViewportService_Report(t *testing.T) {
	s := usecases.NewViewportService()
	if _, ok := s.Viewport(); ok {
		t.Fatal("expected no viewport before the first report")
	}

	var seen []domain.Viewport
	s.SubscribeViewport(func(vp domain.Viewport) { seen = append(seen, vp) })

	if err := s.Report(view(12, brussels)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vp, ok := s.Viewport()
	if !ok {
		t.Fatal("expected a viewport")
	}
	if vp.Center != (domain.GeoPoint{Lat: 50.5, Lon: 4.5}) {
		t.Errorf("expected center derived from bounds, got %+v", vp.Center)
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 notification, got %d", len(seen))
	}
}

func TestViewportService_RejectsInvalid(t *testing.T) {
	s := usecases.NewViewportService()
	cases := []domain.Viewport{
		view(12, domain.Bounds{North: 50, South: 51, East: 5, West: 4}),
		view(12, domain.Bounds{North: 91, South: 50, East: 5, West: 4}),
		view(-1, brussels),
		view(math.NaN(), brussels),
	}
	for _, vp := range cases {
		if err := s.Report(vp); !errors.Is(err, usecases.ErrInvalidViewport) {
			t.Errorf("expected ErrInvalidViewport for %+v, got %v", vp, err)
		}
	}
	if _, ok := s.Viewport(); ok {
		t.Error("rejected reports must not be stored")
	}
}

func TestViewportService_ReportCenter(t *testing.T) {
	s := usecases.NewViewportService()
	center := domain.GeoPoint{Lat: 50.85, Lon: 4.35}

	if err := s.ReportCenter(center, 17, 1024, 768); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vp, _ := s.Viewport()
	if vp.Center != center || vp.Zoom != 17 {
		t.Errorf("unexpected viewport %+v", vp)
	}
	b := vp.Bounds
	if !(b.South < center.Lat && center.Lat < b.North && b.West < center.Lon && center.Lon < b.East) {
		t.Errorf("center outside derived bounds %s", b)
	}

	if err := s.ReportCenter(center, 17, 0, 768); !errors.Is(err, usecases.ErrInvalidViewport) {
		t.Errorf("expected ErrInvalidViewport for zero width, got %v", err)
	}
}

func TestLayoutService_Replace(t *testing.T) {
	s := usecases.NewLayoutService(domain.Layout{ID: "empty"})

	notified := 0
	s.SubscribeLayout(func(domain.Layout) { notified++ })

	next := domain.Layout{ID: "cafes", WidenFactor: 0.05, Layers: cafeAndShopLayers()}
	if err := s.Replace(next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Layout().ID != "cafes" || notified != 1 {
		t.Errorf("expected layout replaced and notified once, got %s/%d", s.Layout().ID, notified)
	}
	if min, ok := s.Layout().MinZoom(); !ok || min != 10 {
		t.Errorf("expected minzoom 10, got %d %v", min, ok)
	}
}

func TestValidateLayout(t *testing.T) {
	bad := domain.Layout{
		WidenFactor: -1,
		Layers: []domain.LayerSpec{
			{ID: "", MinZoom: 10, Tags: tags.MustParse("amenity=cafe")},
			{ID: "a", MinZoom: 30, Tags: tags.MustParse("shop=*")},
			{ID: "a", MinZoom: 10},
			{ID: "b", MinZoom: 10, DoNotDownload: true},
			{ID: "c", MinZoom: 10, Tags: tags.MustParse("access!=private")},
			{ID: "d", MinZoom: 10, Tags: tags.MustParse("access!=private"), DoNotDownload: true},
		},
	}

	err := usecases.ValidateLayout(bad)
	if !errors.Is(err, usecases.ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
	for _, want := range []string{"widen_factor", "id is required", "minzoom must be 0-24", "duplicate id", "tags are required", "layers[4]: alternative has no positive tag"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "layers[3]") || strings.Contains(err.Error(), "layers[5]") {
		t.Error("do_not_download layers need no queryable tags")
	}

	s := usecases.NewLayoutService(domain.Layout{ID: "keep"})
	if err := s.Replace(bad); err == nil || s.Layout().ID != "keep" {
		t.Error("invalid layouts must not replace the active one")
	}
}
