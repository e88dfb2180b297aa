package failure

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker is a single-instance sliding-window tracker. Counts are lost
// on restart, which only degrades detection, never correctness.
type MemoryTracker struct {
	mu        sync.Mutex
	threshold int64
	window    time.Duration
	hits      map[string][]time.Time
	now       func() time.Time
}

func NewMemoryTracker(threshold int64, window time.Duration) *MemoryTracker {
	return &MemoryTracker{
		threshold: threshold,
		window:    window,
		hits:      make(map[string][]time.Time),
		now:       time.Now,
	}
}

func (t *MemoryTracker) RecordFailure(_ context.Context, sourceKey string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	kept := t.prune(sourceKey, now)
	kept = append(kept, now)
	t.hits[sourceKey] = kept
	return int64(len(kept)) > t.threshold, nil
}

func (t *MemoryTracker) OverThreshold(_ context.Context, sourceKey string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.prune(sourceKey, t.now())
	t.hits[sourceKey] = kept
	return int64(len(kept)) > t.threshold, nil
}

// prune drops entries older than the window. Caller holds the lock.
func (t *MemoryTracker) prune(sourceKey string, now time.Time) []time.Time {
	cutoff := now.Add(-t.window)
	entries := t.hits[sourceKey]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(t.hits, sourceKey)
		return nil
	}
	return kept
}
