package valkey

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/osmfj/MapComplete/internal/core/ports"
)

// SnapshotKey holds the latest committed feature collection.
const SnapshotKey = "mapsync:features:latest"

// SnapshotStore implements ports.SnapshotStore on top of a key/value cache,
// so replicas that have not loaded anything yet can serve the last
// committed collection.
type SnapshotStore struct {
	cache      ports.CacheService
	ttlSeconds int
}

// NewSnapshotStore creates a SnapshotStore whose entries expire after ttlSeconds.
func NewSnapshotStore(cache ports.CacheService, ttlSeconds int) *SnapshotStore {
	return &SnapshotStore{cache: cache, ttlSeconds: ttlSeconds}
}

// SaveFeatures overwrites the snapshot.
func (s *SnapshotStore) SaveFeatures(ctx context.Context, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.cache.Set(ctx, SnapshotKey, data, s.ttlSeconds)
}

// LoadFeatures returns the snapshot, or nil without error if there is none.
func (s *SnapshotStore) LoadFeatures(ctx context.Context) (*geojson.FeatureCollection, error) {
	data, err := s.cache.Get(ctx, SnapshotKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return fc, nil
}
