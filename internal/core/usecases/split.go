package usecases

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/osmfj/MapComplete/internal/core/domain"
)

// SplitByLayer assigns every feature to the first layer, in layout order,
// whose tags match it. Features matching no layer are dropped. Layers marked
// do-not-download still receive features that other layers loaded.
func SplitByLayer(layers []domain.LayerSpec, fc *geojson.FeatureCollection) map[string][]*geojson.Feature {
	out := make(map[string][]*geojson.Feature, len(layers))
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		props := FeatureTags(f)
		for _, layer := range layers {
			if layer.Tags == nil || !layer.Tags.Matches(props) {
				continue
			}
			out[layer.ID] = append(out[layer.ID], f)
			break
		}
	}
	return out
}

// FeatureTags flattens a feature's properties into OSM-style string tags.
func FeatureTags(f *geojson.Feature) map[string]string {
	tags := make(map[string]string, len(f.Properties))
	for k, v := range f.Properties {
		switch val := v.(type) {
		case string:
			tags[k] = val
		case nil:
		default:
			tags[k] = fmt.Sprint(val)
		}
	}
	return tags
}
