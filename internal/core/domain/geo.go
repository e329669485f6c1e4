package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is an axis-aligned lat/lon rectangle in degrees.
// It is a value type; all operations return new values.
// Bounds are not normalized across the antimeridian.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Widen expands every edge by factor degrees and clamps the result to
// [-90, 90] latitude and [-180, 180] longitude.
func (b Bounds) Widen(factor float64) Bounds {
	return Bounds{
		North: math.Min(90, b.North+factor),
		South: math.Max(-90, b.South-factor),
		East:  math.Min(180, b.East+factor),
		West:  math.Max(-180, b.West-factor),
	}
}

// Contains reports whether inner lies completely within b. Shared edges count.
func (b Bounds) Contains(inner Bounds) bool {
	return inner.South >= b.South &&
		inner.North <= b.North &&
		inner.East <= b.East &&
		inner.West >= b.West
}

// Valid reports whether the rectangle is well-formed and inside the WGS 84 range.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.South <= b.North && b.West <= b.East &&
		b.South >= -90 && b.North <= 90 &&
		b.West >= -180 && b.East <= 180
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() GeoPoint {
	c := b.Bound().Center()
	return GeoPoint{Lat: c.Lat(), Lon: c.Lon()}
}

// OverpassBBox renders the rectangle in Overpass QL order: south,west,north,east.
func (b Bounds) OverpassBBox() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.South, b.West, b.North, b.East)
}

// Bound converts to an orb.Bound (x = lon, y = lat).
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// BoundsFromOrb is the inverse of Bounds.Bound.
func BoundsFromOrb(ob orb.Bound) Bounds {
	return Bounds{North: ob.Max.Lat(), South: ob.Min.Lat(), East: ob.Max.Lon(), West: ob.Min.Lon()}
}

func (b Bounds) String() string {
	return fmt.Sprintf("[n=%.5f s=%.5f e=%.5f w=%.5f]", b.North, b.South, b.East, b.West)
}

// Viewport is what a map client currently shows.
type Viewport struct {
	Center GeoPoint `json:"center"`
	Zoom   float64  `json:"zoom"`
	Bounds Bounds   `json:"bounds"`
}

// ZoomBucket returns floor(zoom), the partition key of the coverage cache.
func (v Viewport) ZoomBucket() int {
	return int(math.Floor(v.Zoom))
}
