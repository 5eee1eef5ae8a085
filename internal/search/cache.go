package search

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

// snapshot is an immutable view of the record store. Readers share it
// without locking; refreshes swap in a new one.
type snapshot struct {
	records     map[string]*models.ImageRecord
	vectors     map[string][]float32
	ids         []string // sorted
	refreshedAt time.Time
}

func (s *snapshot) empty() bool {
	return len(s.records) == 0
}

// snapshotCache serves the current snapshot, reloading from the store
// when the TTL lapses. Concurrent refreshes collapse into one load.
type snapshotCache struct {
	store store.Store
	ttl   time.Duration
	snap  atomic.Pointer[snapshot]
	group singleflight.Group
}

func newSnapshotCache(st store.Store, ttl time.Duration) *snapshotCache {
	return &snapshotCache{store: st, ttl: ttl}
}

// current returns a fresh-enough snapshot. The bool reports whether the
// cached copy was served without hitting the store.
func (c *snapshotCache) current(ctx context.Context) (*snapshot, bool, error) {
	if snap := c.snap.Load(); snap != nil && time.Since(snap.refreshedAt) < c.ttl {
		return snap, true, nil
	}
	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		// A caller that queued behind an in-flight refresh shares its
		// result; only re-load if the swap has not happened yet.
		if snap := c.snap.Load(); snap != nil && time.Since(snap.refreshedAt) < c.ttl {
			return snap, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*snapshot), false, nil
}

func (c *snapshotCache) refresh(ctx context.Context) (*snapshot, error) {
	records, err := c.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	snap := &snapshot{
		records:     records,
		vectors:     make(map[string][]float32, len(records)),
		ids:         make([]string, 0, len(records)),
		refreshedAt: time.Now(),
	}
	for id, rec := range records {
		snap.vectors[id] = rec.Vector
		snap.ids = append(snap.ids, id)
	}
	sort.Strings(snap.ids)
	c.snap.Store(snap)
	return snap, nil
}

func (c *snapshotCache) clear() {
	c.snap.Store(nil)
}
