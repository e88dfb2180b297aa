package failure

import (
	"context"
	"testing"
	"time"
)

func TestMemoryTrackerThreshold(t *testing.T) {
	tracker := NewMemoryTracker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		over, err := tracker.RecordFailure(ctx, "ip:1.2.3.4")
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if over {
			t.Fatalf("attempt %d should not be over threshold", i+1)
		}
	}

	over, err := tracker.RecordFailure(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if !over {
		t.Fatal("fourth failure should cross threshold of 3")
	}

	// Other sources are counted independently.
	over, _ = tracker.OverThreshold(ctx, "ip:5.6.7.8")
	if over {
		t.Fatal("unrelated source should not be over threshold")
	}
}

func TestMemoryTrackerWindowExpiry(t *testing.T) {
	tracker := NewMemoryTracker(1, time.Minute)
	ctx := context.Background()

	current := time.Now()
	tracker.now = func() time.Time { return current }

	tracker.RecordFailure(ctx, "ip:1.2.3.4")
	tracker.RecordFailure(ctx, "ip:1.2.3.4")

	over, _ := tracker.OverThreshold(ctx, "ip:1.2.3.4")
	if !over {
		t.Fatal("two failures should cross threshold of 1")
	}

	// Advance past the window; old entries must fall out.
	current = current.Add(2 * time.Minute)
	over, _ = tracker.OverThreshold(ctx, "ip:1.2.3.4")
	if over {
		t.Fatal("failures outside the window should not count")
	}
}
