package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soundforge/Tempo/pkg/types"
)

const pendingMarker = "pending"

// EventReservation is the result of a check-and-reserve against the
// idempotency store. IsNew means this delivery won the reservation and must
// process the event; otherwise PriorOutcome carries what the winner recorded
// (nil while the winner is still in flight).
type EventReservation struct {
	IsNew        bool
	InFlight     bool
	PriorOutcome *EventOutcome
}

// EventOutcome is what a completed delivery leaves behind for duplicates.
type EventOutcome struct {
	OrderID        string   `json:"order_id,omitempty"`
	ReservationIDs []string `json:"reservation_ids,omitempty"`
	ProcessedAt    int64    `json:"processed_at"`
}

func eventKey(provider types.Provider, eventID string) string {
	return "webhook:" + string(provider) + ":" + eventID
}

// CheckAndReserve atomically claims a provider event ID. The SetNX is the
// whole race: two concurrent deliveries of the same event cannot both observe
// IsNew. The loser reads the winner's marker instead.
func (c *Client) CheckAndReserve(ctx context.Context, provider types.Provider, eventID string, pendingTTL time.Duration) (*EventReservation, error) {
	key := c.prefixKey(eventKey(provider, eventID))

	set, err := c.rdb.SetNX(ctx, key, pendingMarker, pendingTTL).Result()
	if err != nil {
		return nil, err
	}
	if set {
		return &EventReservation{IsNew: true}, nil
	}

	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Marker expired between SetNX and Get. Claim it now.
		set, err = c.rdb.SetNX(ctx, key, pendingMarker, pendingTTL).Result()
		if err != nil {
			return nil, err
		}
		return &EventReservation{IsNew: set, InFlight: !set}, nil
	}
	if err != nil {
		return nil, err
	}

	if val == pendingMarker {
		return &EventReservation{InFlight: true}, nil
	}

	var outcome EventOutcome
	if err := json.Unmarshal([]byte(val), &outcome); err != nil {
		// Unreadable marker: treat as in-flight so we never reprocess.
		return &EventReservation{InFlight: true}, nil
	}
	return &EventReservation{PriorOutcome: &outcome}, nil
}

// MarkCompleted replaces the pending marker with the recorded outcome.
// Called after the reconciliation transaction commits; redelivery between
// commit and this call re-runs the engine, which is a safe no-op.
func (c *Client) MarkCompleted(ctx context.Context, provider types.Provider, eventID string, outcome *EventOutcome, ttl time.Duration) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefixKey(eventKey(provider, eventID)), payload, ttl).Err()
}

// Release drops the reservation so the provider's redelivery can reprocess.
// Used for terminal rejections (e.g. a refund arriving before its paid event
// has landed) and for exhausted transient retries.
func (c *Client) Release(ctx context.Context, provider types.Provider, eventID string) error {
	return c.rdb.Del(ctx, c.prefixKey(eventKey(provider, eventID))).Err()
}
