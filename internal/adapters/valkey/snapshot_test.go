package valkey_test

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/osmfj/MapComplete/internal/adapters/valkey"
)

// --- Mock CacheService ---

type mockCache struct {
	data   map[string][]byte
	ttls   map[string]int
	getErr error
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.data[key]
	if !ok {
		return nil, valkey.ErrNotFound
	}
	return b, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.data[key] = value
	m.ttls[key] = ttlSeconds
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	cache := newMockCache()
	store := valkey.NewSnapshotStore(cache, 600)

	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{4.35, 50.85})
	f.Properties["amenity"] = "cafe"
	fc.Append(f)

	if err := store.SaveFeatures(context.Background(), fc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if cache.ttls[valkey.SnapshotKey] != 600 {
		t.Errorf("expected ttl 600, got %d", cache.ttls[valkey.SnapshotKey])
	}

	got, err := store.LoadFeatures(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Features) != 1 || got.Features[0].Properties["amenity"] != "cafe" {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

func TestSnapshotStore_Missing(t *testing.T) {
	store := valkey.NewSnapshotStore(newMockCache(), 600)

	fc, err := store.LoadFeatures(context.Background())
	if err != nil || fc != nil {
		t.Errorf("expected nil snapshot without error, got %v %v", fc, err)
	}
}

func TestSnapshotStore_Errors(t *testing.T) {
	cache := newMockCache()
	cache.getErr = errors.New("connection reset")
	store := valkey.NewSnapshotStore(cache, 600)

	if _, err := store.LoadFeatures(context.Background()); err == nil {
		t.Error("expected cache error to surface")
	}

	cache.getErr = nil
	cache.data[valkey.SnapshotKey] = []byte("not json")
	if _, err := store.LoadFeatures(context.Background()); err == nil {
		t.Error("expected unmarshal error")
	}
}
