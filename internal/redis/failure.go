package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// failureScript records one failure and returns the count inside the window.
// Same sliding-window shape as a rate limiter, but nothing is ever blocked on
// the result; the count only drives log/alert escalation.
var failureScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local window_ms = tonumber(ARGV[3])

	redis.call("ZREMRANGEBYSCORE", key, "-inf", window_start)
	redis.call("ZADD", key, now, now .. "-" .. math.random())
	redis.call("PEXPIRE", key, window_ms)
	return redis.call("ZCARD", key)
`)

// FailureTracker counts rejected webhook attempts per source within a rolling
// window. Backed by Redis so counts are shared across instances.
type FailureTracker struct {
	client    *Client
	threshold int64
	window    time.Duration
}

func NewFailureTracker(client *Client, threshold int64, window time.Duration) *FailureTracker {
	return &FailureTracker{
		client:    client,
		threshold: threshold,
		window:    window,
	}
}

// RecordFailure adds one rejection for the source and reports whether the
// source is now over the escalation threshold.
func (t *FailureTracker) RecordFailure(ctx context.Context, sourceKey string) (bool, error) {
	key := t.client.prefixKey("failures:" + sourceKey)
	now := time.Now()
	windowStart := now.Add(-t.window).UnixMilli()

	count, err := failureScript.Run(ctx, t.client.rdb, []string{key},
		now.UnixMilli(),
		windowStart,
		t.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return count > t.threshold, nil
}

// OverThreshold reports whether the source currently exceeds the threshold
// without recording anything.
func (t *FailureTracker) OverThreshold(ctx context.Context, sourceKey string) (bool, error) {
	key := t.client.prefixKey("failures:" + sourceKey)
	windowStart := time.Now().Add(-t.window).UnixMilli()

	if err := t.client.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10)).Err(); err != nil {
		return false, err
	}
	count, err := t.client.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return count > t.threshold, nil
}
