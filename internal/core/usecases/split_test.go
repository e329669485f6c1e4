package usecases_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
	"github.com/osmfj/MapComplete/internal/core/usecases"
)

func tagged(props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{4.35, 50.85})
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestSplitByLayer_FirstMatchWins(t *testing.T) {
	layers := []domain.LayerSpec{
		{ID: "coffee", Tags: tags.MustParse("amenity=cafe&cuisine=coffee_shop")},
		{ID: "cafes", Tags: tags.MustParse("amenity=cafe")},
		{ID: "shops", Tags: tags.MustParse("shop=*")},
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(tagged(map[string]any{"amenity": "cafe", "cuisine": "coffee_shop"}))
	fc.Append(tagged(map[string]any{"amenity": "cafe"}))
	fc.Append(tagged(map[string]any{"shop": "bakery"}))
	fc.Append(tagged(map[string]any{"highway": "bus_stop"}))

	got := usecases.SplitByLayer(layers, fc)

	if len(got["coffee"]) != 1 {
		t.Errorf("expected 1 coffee feature, got %d", len(got["coffee"]))
	}
	if len(got["cafes"]) != 1 {
		t.Errorf("expected the coffee shop to stay out of cafes, got %d", len(got["cafes"]))
	}
	if len(got["shops"]) != 1 {
		t.Errorf("expected 1 shop, got %d", len(got["shops"]))
	}
	total := 0
	for _, fs := range got {
		total += len(fs)
	}
	if total != 3 {
		t.Errorf("unmatched features must be dropped, got %d assigned", total)
	}
}

func TestSplitByLayer_IncludesDoNotDownloadLayers(t *testing.T) {
	layers := []domain.LayerSpec{
		{ID: "benches", DoNotDownload: true, Tags: tags.MustParse("amenity=bench")},
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(tagged(map[string]any{"amenity": "bench"}))

	if got := usecases.SplitByLayer(layers, fc); len(got["benches"]) != 1 {
		t.Errorf("expected the bench to be assigned, got %v", got)
	}
}

func TestSplitByLayer_NilCollection(t *testing.T) {
	if got := usecases.SplitByLayer(cafeAndShopLayers(), nil); len(got) != 0 {
		t.Errorf("expected empty split, got %v", got)
	}
}

func TestFeatureTags_Stringifies(t *testing.T) {
	f := tagged(map[string]any{"name": "Café", "level": 1, "note": nil})
	got := usecases.FeatureTags(f)
	if got["name"] != "Café" || got["level"] != "1" {
		t.Errorf("unexpected tags %v", got)
	}
	if _, ok := got["note"]; ok {
		t.Error("nil properties must be skipped")
	}
}
