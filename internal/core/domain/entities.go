package domain

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/osmfj/MapComplete/internal/core/tags"
)

// MaxZoom is the highest zoom bucket tracked by the coverage cache.
const MaxZoom = 24

// DefaultMinZoom applies to layers that do not configure a minzoom.
const DefaultMinZoom = 18

// LayerSpec is one configured feature layer.
type LayerSpec struct {
	ID            string      `json:"id"`
	Name          string      `json:"name,omitempty"`
	MinZoom       int         `json:"minzoom"`
	DoNotDownload bool        `json:"do_not_download"`
	Tags          tags.Filter `json:"-"`
}

// Downloadable reports whether the layer takes part in fetch planning.
func (l LayerSpec) Downloadable() bool {
	return !l.DoNotDownload && l.Tags != nil
}

// Layout is the active theme: the layers to load and how far to widen queries.
type Layout struct {
	ID          string      `json:"id"`
	WidenFactor float64     `json:"widen_factor"`
	Layers      []LayerSpec `json:"layers"`
}

// Layer returns the layer with the given ID.
func (l Layout) Layer(id string) (LayerSpec, bool) {
	for _, layer := range l.Layers {
		if layer.ID == id {
			return layer, true
		}
	}
	return LayerSpec{}, false
}

// MinZoom returns the lowest minzoom across all layers, or false when there are none.
func (l Layout) MinZoom() (int, bool) {
	if len(l.Layers) == 0 {
		return 0, false
	}
	min := l.Layers[0].MinZoom
	for _, layer := range l.Layers[1:] {
		if layer.MinZoom < min {
			min = layer.MinZoom
		}
	}
	return min, true
}

// QueryResult is a successful answer from the remote query service.
type QueryResult struct {
	Features  *geojson.FeatureCollection `json:"features"`
	Timestamp time.Time                  `json:"timestamp"`
}

// FetchOutcome is the terminal state of one dispatch.
type FetchOutcome string

const (
	FetchSucceeded FetchOutcome = "success"
	FetchFailed    FetchOutcome = "failure"
)

// FetchRecord describes one completed dispatch.
type FetchRecord struct {
	ID           string        `json:"id,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	ZoomBucket   int           `json:"zoom_bucket"`
	Bounds       Bounds        `json:"bounds"`
	Filter       string        `json:"filter"`
	Layers       []string      `json:"layers"`
	Outcome      FetchOutcome  `json:"outcome"`
	Error        string        `json:"error,omitempty"`
	FeatureCount int           `json:"feature_count"`
	RetryCount   int           `json:"retry_count"`
	DataTime     *time.Time    `json:"data_time,omitempty"`
}

// LoaderState is a point-in-time view of the loader for consumers.
type LoaderState struct {
	RunningQuery       bool       `json:"running_query"`
	RetryCount         int        `json:"retry_count"`
	SufficientlyZoomed bool       `json:"sufficiently_zoomed"`
	Freshness          *time.Time `json:"freshness,omitempty"`
	FeatureCount       int        `json:"feature_count"`
	CachedBounds       int        `json:"cached_bounds"`
	Viewport           *Viewport  `json:"viewport,omitempty"`
}
