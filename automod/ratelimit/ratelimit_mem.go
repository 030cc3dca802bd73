package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Expired records are swept once every this many CheckAndSet calls.
const sweepEvery = 1024

type memRecord struct {
	last    time.Time
	expires time.Time
}

// In-process Store. Per-key updates go through xsync's Compute, which holds
// the bucket lock for the duration of the callback, making check-and-set
// atomic per actor.
//
// Records of actors who never come back are dropped by a periodic sweep.
type MemStore struct {
	Data *xsync.MapOf[string, memRecord]

	calls atomic.Uint64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Data: xsync.NewMapOf[string, memRecord](),
	}
}

func (s *MemStore) CheckAndSet(ctx context.Context, actorID string, now time.Time, window time.Duration) (bool, error) {
	if s.calls.Add(1)%sweepEvery == 0 {
		s.Sweep(now)
	}

	allowed := false
	s.Data.Compute(recordKey(actorID), func(old memRecord, loaded bool) (memRecord, bool) {
		if loaded && now.Before(old.expires) && now.Sub(old.last) < window {
			return old, false
		}
		allowed = true
		return memRecord{last: now, expires: now.Add(window)}, false
	})
	return allowed, nil
}

func (s *MemStore) Clear(ctx context.Context, actorID string) error {
	s.Data.Delete(recordKey(actorID))
	return nil
}

// Deletes every record that has expired as of now and returns how many were
// removed.
func (s *MemStore) Sweep(now time.Time) int {
	removed := 0
	s.Data.Range(func(key string, rec memRecord) bool {
		if now.Before(rec.expires) {
			return true
		}
		// re-check under the bucket lock, the actor may have been re-admitted
		s.Data.Compute(key, func(old memRecord, loaded bool) (memRecord, bool) {
			if !loaded || now.Before(old.expires) {
				return old, !loaded
			}
			removed++
			return old, true
		})
		return true
	})
	return removed
}
