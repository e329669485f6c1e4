package geospatial_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/osmfj/MapComplete/internal/pkg/geospatial"
)

func TestHaversine(t *testing.T) {
	// Brussels Grand-Place to Antwerp Central, about 41 km.
	d := geospatial.Haversine(50.8467, 4.3525, 51.2172, 4.4211)
	if d < 40000 || d > 43000 {
		t.Errorf("expected ~41 km, got %.0f m", d)
	}
	if geospatial.Haversine(50, 4, 50, 4) != 0 {
		t.Error("distance to self must be 0")
	}
}

func TestViewportBound_Symmetric(t *testing.T) {
	b := geospatial.ViewportBound(0, 0, 2, 512, 512)

	if math.Abs(b.Max.Lon()+b.Min.Lon()) > 1e-6 {
		t.Errorf("expected symmetric longitudes, got %v", b)
	}
	if math.Abs(b.Max.Lat()+b.Min.Lat()) > 1e-6 {
		t.Errorf("expected symmetric latitudes, got %v", b)
	}
	// 512px at zoom 2 is half of the 1024px world.
	if math.Abs(b.Max.Lon()-90) > 1e-6 {
		t.Errorf("expected east=90, got %f", b.Max.Lon())
	}
}

func TestViewportBound_ContainsCenter(t *testing.T) {
	lat, lon := 50.85, 4.35
	b := geospatial.ViewportBound(lat, lon, 16, 1280, 800)

	if !b.Contains(orb.Point{lon, lat}) {
		t.Errorf("center %f,%f outside %v", lat, lon, b)
	}
	if b.Max.Lat()-b.Min.Lat() > 0.05 || b.Max.Lon()-b.Min.Lon() > 0.05 {
		t.Errorf("zoom 16 viewport unexpectedly large: %v", b)
	}
	// Mercator stretches latitudes, so the view is taller in pixels than in degrees.
	if b.Max.Lat()-b.Min.Lat() >= (b.Max.Lon()-b.Min.Lon())*800/1280 {
		t.Errorf("expected latitude span compressed at 50N, got %v", b)
	}
}

func TestViewportBound_Clamps(t *testing.T) {
	b := geospatial.ViewportBound(80, 170, 1, 4096, 4096)

	if b.Max.Lat() > geospatial.MaxMercatorLat+1e-9 || b.Min.Lat() < -geospatial.MaxMercatorLat-1e-9 {
		t.Errorf("latitude out of Mercator range: %v", b)
	}
	if b.Max.Lon() > 180 || b.Min.Lon() < -180 {
		t.Errorf("longitude out of range: %v", b)
	}
}
