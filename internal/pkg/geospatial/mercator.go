package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const tileSize = 256.0

// MaxMercatorLat is the latitude at which Web Mercator maps to a square world.
const MaxMercatorLat = 85.0511287798066

// ViewportBound returns the lon/lat rectangle of a Web Mercator map of
// widthPx x heightPx pixels centred on lat/lon at zoom. Latitudes are clamped
// to the Mercator range and longitudes to [-180, 180].
func ViewportBound(lat, lon, zoom float64, widthPx, heightPx int) orb.Bound {
	lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
	c := project.WGS84.ToMercator(orb.Point{lon, lat})

	// The projected world is 2πR metres wide at every zoom.
	res := 2 * math.Pi * orb.EarthRadius / (tileSize * math.Exp2(zoom))
	halfW := float64(widthPx) / 2 * res
	halfH := float64(heightPx) / 2 * res

	edge := math.Pi * orb.EarthRadius
	sw := project.Mercator.ToWGS84(orb.Point{c.X() - halfW, math.Max(-edge, c.Y()-halfH)})
	ne := project.Mercator.ToWGS84(orb.Point{c.X() + halfW, math.Min(edge, c.Y()+halfH)})

	return orb.Bound{
		Min: orb.Point{math.Max(-180, sw.Lon()), sw.Lat()},
		Max: orb.Point{math.Min(180, ne.Lon()), ne.Lat()},
	}
}
