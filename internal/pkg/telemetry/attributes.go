package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the loader and the Overpass client.
const (
	QueryID         = attribute.Key("query.id")
	QueryZoomBucket = attribute.Key("query.zoom_bucket")
	QueryBBox       = attribute.Key("query.bbox")
	QueryLayers     = attribute.Key("query.layers")
	QueryFeatures   = attribute.Key("query.features")

	OverpassURL         = attribute.Key("overpass.url")
	OverpassQueryLength = attribute.Key("overpass.query_length")
	OverpassFeatures    = attribute.Key("overpass.features")
)
