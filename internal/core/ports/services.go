package ports

import (
	"context"

	"github.com/paulmach/orb/geojson"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
)

// QueryService is the remote geodata query service (Overpass).
// Query returns exactly one of a result or an error.
type QueryService interface {
	Query(ctx context.Context, bounds domain.Bounds, filter tags.Filter) (*domain.QueryResult, error)
}

// ViewportProvider exposes the client's current map view.
type ViewportProvider interface {
	// Viewport returns the current view; false until the first report.
	Viewport() (domain.Viewport, bool)
	SubscribeViewport(fn func(domain.Viewport)) (unsubscribe func())
}

// LayoutProvider exposes the active layer configuration.
type LayoutProvider interface {
	Layout() domain.Layout
	SubscribeLayout(fn func(domain.Layout)) (unsubscribe func())
}

// EventPublisher publishes loader events to a message broker.
type EventPublisher interface {
	PublishFeaturesCommitted(ctx context.Context, rec *domain.FetchRecord) error
	PublishQueryFailed(ctx context.Context, rec *domain.FetchRecord) error
	PublishState(ctx context.Context, state domain.LoaderState) error
}

// EventSubscriber subscribes to viewport reports from a message broker.
type EventSubscriber interface {
	SubscribeViewports(ctx context.Context, handler func(ctx context.Context, vp *domain.Viewport) error) error
}

// CacheService provides key/value storage with expiry.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// SnapshotStore shares the latest committed feature collection with other replicas.
type SnapshotStore interface {
	SaveFeatures(ctx context.Context, fc *geojson.FeatureCollection) error
	LoadFeatures(ctx context.Context) (*geojson.FeatureCollection, error)
}
