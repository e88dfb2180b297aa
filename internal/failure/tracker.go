package failure

import "context"

// Tracker counts rejected webhook attempts per source key. It exists for
// observability and alert escalation only: callers must treat errors and
// missing counts as "not over threshold" and keep processing (fail-open).
type Tracker interface {
	// RecordFailure adds one rejection for the source and reports whether
	// the source is now over the escalation threshold.
	RecordFailure(ctx context.Context, sourceKey string) (bool, error)
	// OverThreshold reports the current state without recording.
	OverThreshold(ctx context.Context, sourceKey string) (bool, error)
}
