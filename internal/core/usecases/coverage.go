package usecases

import (
	"sync"

	"github.com/osmfj/MapComplete/internal/core/domain"
)

// ZoomBoundsCache remembers, per zoom bucket 0..domain.MaxZoom, the
// rectangles that have already been fetched.
//
// A layer with minzoom m that is shown at zoom z may already be covered by
// data fetched at any zoom between m and MaxZoom, so lookups scan upward
// from the layer's minzoom instead of tracking per-layer state.
type ZoomBoundsCache struct {
	mu      sync.RWMutex
	buckets [domain.MaxZoom + 1][]domain.Bounds
}

// NewZoomBoundsCache returns a cache with every bucket empty.
func NewZoomBoundsCache() *ZoomBoundsCache {
	return &ZoomBoundsCache{}
}

// RecordFetch appends bounds to the bucket. Buckets outside 0..MaxZoom are clamped.
func (c *ZoomBoundsCache) RecordFetch(bucket int, bounds domain.Bounds) {
	bucket = clampBucket(bucket)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[bucket] = append(c.buckets[bucket], bounds)
}

// IsCovered reports whether any rectangle recorded at minZoom or above
// contains viewport. It stops at the first match.
func (c *ZoomBoundsCache) IsCovered(minZoom int, viewport domain.Bounds) bool {
	if minZoom < 0 {
		minZoom = 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for z := minZoom; z <= domain.MaxZoom; z++ {
		for _, b := range c.buckets[z] {
			if b.Contains(viewport) {
				return true
			}
		}
	}
	return false
}

// InvalidateAll empties every bucket.
func (c *ZoomBoundsCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for z := range c.buckets {
		c.buckets[z] = nil
	}
}

// Len returns the number of recorded rectangles across all buckets.
func (c *ZoomBoundsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, b := range c.buckets {
		n += len(b)
	}
	return n
}

// Snapshot returns a copy of every non-empty bucket.
func (c *ZoomBoundsCache) Snapshot() map[int][]domain.Bounds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int][]domain.Bounds)
	for z, b := range c.buckets {
		if len(b) == 0 {
			continue
		}
		out[z] = append([]domain.Bounds(nil), b...)
	}
	return out
}

func clampBucket(z int) int {
	if z < 0 {
		return 0
	}
	if z > domain.MaxZoom {
		return domain.MaxZoom
	}
	return z
}
