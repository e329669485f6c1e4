package usecases

import (
	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
)

// FuseFilter combines the tag filters of every layer that still needs data
// for the given zoom and viewport into a single OR filter.
//
// A layer is skipped when zoom is below its minzoom, when it is marked
// do-not-download, or when cache already covers viewport from its minzoom
// upward. It returns ok=false when no layer is left.
func FuseFilter(layers []domain.LayerSpec, zoom float64, viewport domain.Bounds, cache *ZoomBoundsCache) (filter tags.Filter, layerIDs []string, ok bool) {
	var parts tags.Or
	for _, layer := range layers {
		if zoom < float64(layer.MinZoom) || !layer.Downloadable() {
			continue
		}
		if cache.IsCovered(layer.MinZoom, viewport) {
			continue
		}
		parts = append(parts, layer.Tags)
		layerIDs = append(layerIDs, layer.ID)
	}
	if len(parts) == 0 {
		return nil, nil, false
	}
	return parts, layerIDs, true
}
