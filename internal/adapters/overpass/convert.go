package overpass

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type response struct {
	OSM3S struct {
		TimestampOSMBase string `json:"timestamp_osm_base"`
	} `json:"osm3s"`
	Elements []element `json:"elements"`
	Remark   string    `json:"remark"`
}

type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Tags     map[string]string `json:"tags"`
	Bounds   *elementBounds    `json:"bounds"`
	Geometry []latLon          `json:"geometry"`
}

type elementBounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// toFeatures converts OSM elements into GeoJSON features. Nodes become
// points, closed ways polygons, open ways line strings and relations the
// centre of their bounds. Elements without usable geometry are dropped.
func toFeatures(elements []element) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, el := range elements {
		geom := elementGeometry(el)
		if geom == nil {
			continue
		}
		id := fmt.Sprintf("%s/%d", el.Type, el.ID)
		f := geojson.NewFeature(geom)
		f.ID = id
		for k, v := range el.Tags {
			f.Properties[k] = v
		}
		f.Properties["id"] = id
		fc.Append(f)
	}
	return fc
}

func elementGeometry(el element) orb.Geometry {
	switch el.Type {
	case "node":
		return orb.Point{el.Lon, el.Lat}
	case "way":
		if len(el.Geometry) < 2 {
			return nil
		}
		ls := make(orb.LineString, len(el.Geometry))
		for i, p := range el.Geometry {
			ls[i] = orb.Point{p.Lon, p.Lat}
		}
		if len(ls) >= 4 && ls[0].Equal(ls[len(ls)-1]) {
			return orb.Polygon{orb.Ring(ls)}
		}
		return ls
	case "relation":
		if el.Bounds == nil {
			return nil
		}
		return orb.Point{
			(el.Bounds.MinLon + el.Bounds.MaxLon) / 2,
			(el.Bounds.MinLat + el.Bounds.MaxLat) / 2,
		}
	default:
		return nil
	}
}
