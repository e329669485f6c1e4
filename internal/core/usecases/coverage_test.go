package usecases_test

import (
	"testing"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/usecases"
)

var (
	fetched = domain.Bounds{North: 51.1, South: 49.9, East: 5.1, West: 3.9}
	inside  = domain.Bounds{North: 50.9, South: 50.1, East: 4.9, West: 4.1}
	outside = domain.Bounds{North: 52.5, South: 52.0, East: 5.0, West: 4.5}
)

func TestZoomBoundsCache_EmptyCoversNothing(t *testing.T) {
	c := usecases.NewZoomBoundsCache()
	if c.IsCovered(0, inside) {
		t.Error("empty cache must not cover anything")
	}
	if c.Len() != 0 {
		t.Errorf("expected 0 entries, got %d", c.Len())
	}
}

func TestZoomBoundsCache_ScansUpwardFromMinZoom(t *testing.T) {
	c := usecases.NewZoomBoundsCache()
	c.RecordFetch(14, fetched)

	if !c.IsCovered(10, inside) {
		t.Error("fetch at zoom 14 must cover a layer with minzoom 10")
	}
	if !c.IsCovered(14, inside) {
		t.Error("fetch at zoom 14 must cover a layer with minzoom 14")
	}
	if c.IsCovered(15, inside) {
		t.Error("fetch at zoom 14 must not cover a layer with minzoom 15")
	}
	if c.IsCovered(10, outside) {
		t.Error("viewport outside recorded bounds must not be covered")
	}
}

func TestZoomBoundsCache_AppendOnly(t *testing.T) {
	c := usecases.NewZoomBoundsCache()
	c.RecordFetch(12, fetched)
	c.RecordFetch(12, fetched)
	c.RecordFetch(3, outside)

	if c.Len() != 3 {
		t.Errorf("expected duplicates to be kept, got %d entries", c.Len())
	}
	snap := c.Snapshot()
	if len(snap[12]) != 2 || len(snap[3]) != 1 {
		t.Errorf("unexpected snapshot %v", snap)
	}
}

func TestZoomBoundsCache_InvalidateAll(t *testing.T) {
	c := usecases.NewZoomBoundsCache()
	for z := 0; z <= domain.MaxZoom; z++ {
		c.RecordFetch(z, fetched)
	}

	c.InvalidateAll()

	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
	if len(c.Snapshot()) != 0 {
		t.Error("expected every bucket to be empty")
	}
	if c.IsCovered(0, inside) {
		t.Error("invalidated cache must not cover anything")
	}
}

func TestZoomBoundsCache_ClampsBuckets(t *testing.T) {
	c := usecases.NewZoomBoundsCache()
	c.RecordFetch(30, fetched)
	c.RecordFetch(-2, outside)

	snap := c.Snapshot()
	if len(snap[domain.MaxZoom]) != 1 {
		t.Errorf("expected zoom 30 to land in bucket %d", domain.MaxZoom)
	}
	if len(snap[0]) != 1 {
		t.Error("expected negative zoom to land in bucket 0")
	}
	if !c.IsCovered(-5, outside) {
		t.Error("negative minzoom should scan from bucket 0")
	}
	if c.IsCovered(domain.MaxZoom+1, inside) {
		t.Error("minzoom beyond the last bucket scans nothing")
	}
}

func TestZoomBoundsCache_SnapshotIsCopy(t *testing.T) {
	c := usecases.NewZoomBoundsCache()
	c.RecordFetch(5, fetched)

	snap := c.Snapshot()
	snap[5][0] = outside

	if !c.IsCovered(5, inside) {
		t.Error("mutating a snapshot must not affect the cache")
	}
}
