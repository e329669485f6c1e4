package usecases

import (
	"errors"
	"fmt"
	"math"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/pkg/geospatial"
	"github.com/osmfj/MapComplete/internal/pkg/observable"
)

// ErrInvalidViewport is returned for viewports that cannot be planned against.
var ErrInvalidViewport = errors.New("invalid viewport")

// ViewportService holds the client's current map view. It is the
// ports.ViewportProvider of the loader; HTTP, WebSocket and NATS feed it.
type ViewportService struct {
	current observable.Value[domain.Viewport]
}

// NewViewportService creates a ViewportService with no viewport yet.
func NewViewportService() *ViewportService {
	return &ViewportService{}
}

// Viewport returns the latest reported viewport; false until the first report.
func (s *ViewportService) Viewport() (domain.Viewport, bool) {
	return s.current.Lookup()
}

// SubscribeViewport registers fn for every accepted report.
func (s *ViewportService) SubscribeViewport(fn func(domain.Viewport)) func() {
	return s.current.Subscribe(fn)
}

// Report validates and publishes a viewport. A zero center is derived from
// the bounds.
func (s *ViewportService) Report(vp domain.Viewport) error {
	if !vp.Bounds.Valid() {
		return fmt.Errorf("%w: bounds %s", ErrInvalidViewport, vp.Bounds)
	}
	if math.IsNaN(vp.Zoom) || vp.Zoom < 0 || vp.Zoom > domain.MaxZoom+1 {
		return fmt.Errorf("%w: zoom %v", ErrInvalidViewport, vp.Zoom)
	}
	if vp.Center == (domain.GeoPoint{}) {
		vp.Center = vp.Bounds.Center()
	}
	s.current.Set(vp)
	return nil
}

// ReportCenter publishes a viewport given only its center, zoom and pixel size.
func (s *ViewportService) ReportCenter(center domain.GeoPoint, zoom float64, widthPx, heightPx int) error {
	if widthPx <= 0 || heightPx <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidViewport, widthPx, heightPx)
	}
	return s.Report(domain.Viewport{
		Center: center,
		Zoom:   zoom,
		Bounds: domain.BoundsFromOrb(geospatial.ViewportBound(center.Lat, center.Lon, zoom, widthPx, heightPx)),
	})
}
