package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soundforge/Tempo/internal/event"
	"github.com/soundforge/Tempo/internal/kafka"
	"github.com/soundforge/Tempo/internal/middleware"
	"github.com/soundforge/Tempo/internal/order"
)

// maxReadAttempts bounds the re-read loop when a conditional update keeps
// missing its predicate under concurrent writers.
const maxReadAttempts = 3

// Result reports what a processed event did to the order.
type Result struct {
	OrderID        string   `json:"order_id"`
	ReservationIDs []string `json:"reservation_ids,omitempty"`
	// Duplicate marks an event that described a business outcome the order
	// had already reached. Acknowledged, nothing new dispatched.
	Duplicate bool   `json:"duplicate,omitempty"`
	Message   string `json:"message"`
}

// Engine drives order state off normalized payment events. All mutations go
// through conditional updates inside a single store transaction, so two
// workers racing on the same order converge on one winner.
type Engine struct {
	store order.Store
}

func NewEngine(store order.Store) *Engine {
	return &Engine{
		store: store,
	}
}

// Apply reconciles one event against its order. Terminal failures come back
// as ErrUnknownOrder or *IllegalTransitionError; ErrConflict and store errors
// are transient and safe for the caller to retry.
func (e *Engine) Apply(ctx context.Context, ev *event.NormalizedPaymentEvent, requestID string) (*Result, error) {
	if ev.Kind == event.KindIgnored {
		return &Result{Message: "event type not subscribed"}, nil
	}

	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		o, err := e.store.GetByCorrelationKey(ctx, ev.CorrelationKey)
		if err != nil {
			if err == order.ErrNotFound {
				return nil, fmt.Errorf("%w: %q", ErrUnknownOrder, ev.CorrelationKey)
			}
			return nil, err
		}

		res, err := e.applyOnce(ctx, o, ev, requestID)
		if err == ErrConflict {
			// Another writer moved the order between our read and write.
			// Re-read and re-evaluate against the fresh status.
			continue
		}
		return res, err
	}
	return nil, ErrConflict
}

func (e *Engine) applyOnce(ctx context.Context, o *order.Order, ev *event.NormalizedPaymentEvent, requestID string) (*Result, error) {
	logger := middleware.GetLogger(ctx)

	if ev.AmountMinorUnits != 0 && ev.AmountMinorUnits != o.Total && ev.Kind != event.KindPaymentRefunded {
		// Partial captures and provider-side fees exist; the mismatch is an
		// anomaly for operators, not grounds to refuse the provider's truth.
		logger.Warn().
			Str("orderId", o.ID).
			Str("eventId", ev.EventID).
			Int64("orderTotal", o.Total).
			Int64("eventAmount", ev.AmountMinorUnits).
			Msg("event amount does not match order total")
	}

	switch ev.Kind {
	case event.KindPaymentSucceeded:
		return e.applySucceeded(ctx, o, ev, requestID)
	case event.KindPaymentFailed:
		return e.transition(ctx, o, ev, requestID, order.StatusPending, order.StatusFailed)
	case event.KindPaymentRefunded:
		return e.transition(ctx, o, ev, requestID, order.StatusPaid, order.StatusRefunded)
	default:
		return nil, fmt.Errorf("unhandled event kind %q", ev.Kind)
	}
}

func (e *Engine) applySucceeded(ctx context.Context, o *order.Order, ev *event.NormalizedPaymentEvent, requestID string) (*Result, error) {
	switch o.Status {
	case order.StatusPending:
		return e.confirmPayment(ctx, o, ev, requestID)
	case order.StatusPaid:
		if o.ProviderTransactionID != "" && o.ProviderTransactionID != ev.ProviderTransactionID {
			return nil, &IllegalTransitionError{
				OrderID: o.ID,
				From:    o.Status,
				Kind:    ev.Kind,
				Reason:  "order already attributed to a different provider transaction",
			}
		}
		// Same business outcome delivered again. Nothing new to dispatch,
		// but finish any reservation left pending by an earlier partial run.
		return e.redriveCascade(ctx, o, ev)
	default:
		return nil, &IllegalTransitionError{
			OrderID: o.ID,
			From:    o.Status,
			Kind:    ev.Kind,
			Reason:  "terminal status",
		}
	}
}

// confirmPayment is the pending->paid transition: the status flip, the
// reservation cascade, audit and side-effect outbox rows commit together.
func (e *Engine) confirmPayment(ctx context.Context, o *order.Order, ev *event.NormalizedPaymentEvent, requestID string) (*Result, error) {
	result := &Result{
		OrderID: o.ID,
		Message: "order paid",
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx order.TxStore) error {
		moved, err := tx.UpdateOrderStatus(ctx, o.ID, order.StatusPending, order.StatusPaid, &order.TransitionParams{
			Provider:              string(ev.Provider),
			ProviderTransactionID: ev.ProviderTransactionID,
		})
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if !moved {
			return ErrConflict
		}

		reservations, err := tx.ListReservations(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("failed to list reservations: %w", err)
		}
		for _, res := range reservations {
			if res.Status != order.ReservationPending {
				continue
			}
			confirmed, err := tx.ConfirmReservation(ctx, res.ID)
			if err != nil {
				return fmt.Errorf("failed to confirm reservation %s: %w", res.ID, err)
			}
			if confirmed {
				result.ReservationIDs = append(result.ReservationIDs, res.ID)
			}
		}

		if err := tx.AppendAudit(ctx, &order.AuditEntry{
			OrderID:               o.ID,
			Provider:              ev.Provider,
			EventID:               ev.EventID,
			EventKind:             string(ev.Kind),
			FromStatus:            order.StatusPending,
			ToStatus:              order.StatusPaid,
			ProviderTransactionID: ev.ProviderTransactionID,
			RequestID:             requestID,
		}); err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}

		invoicePayload, err := json.Marshal(order.InvoiceRequest{
			OrderID:               o.ID,
			Total:                 o.Total,
			Currency:              o.Currency,
			ProviderTransactionID: ev.ProviderTransactionID,
		})
		if err != nil {
			return err
		}
		if err := tx.EnqueueSideEffect(ctx, &order.SideEffect{
			EventType:     kafka.EventInvoiceRequested,
			Payload:       invoicePayload,
			PartitionKey:  o.ID,
			CorrelationID: ev.EventID,
		}); err != nil {
			return fmt.Errorf("failed to enqueue invoice request: %w", err)
		}

		notifyPayload, err := json.Marshal(order.NotificationRequest{
			OrderID:        o.ID,
			Kind:           string(event.KindPaymentSucceeded),
			ReservationIDs: result.ReservationIDs,
		})
		if err != nil {
			return err
		}
		if err := tx.EnqueueSideEffect(ctx, &order.SideEffect{
			EventType:     kafka.EventNotificationRequired,
			Payload:       notifyPayload,
			PartitionKey:  o.ID,
			CorrelationID: ev.EventID,
		}); err != nil {
			return fmt.Errorf("failed to enqueue notification request: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// redriveCascade handles a redelivered success event for an already-paid
// order: acknowledge it, and confirm any reservation a previous run left
// pending. No audit row, no side effects.
func (e *Engine) redriveCascade(ctx context.Context, o *order.Order, ev *event.NormalizedPaymentEvent) (*Result, error) {
	result := &Result{
		OrderID:   o.ID,
		Duplicate: true,
		Message:   "order already paid",
	}

	reservations, err := e.store.ListReservations(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	var pending []order.Reservation
	for _, res := range reservations {
		if res.Status == order.ReservationPending {
			pending = append(pending, res)
		}
	}
	if len(pending) == 0 {
		return result, nil
	}

	middleware.GetLogger(ctx).Info().
		Str("orderId", o.ID).
		Str("eventId", ev.EventID).
		Int("pendingReservations", len(pending)).
		Msg("completing reservation cascade on redelivered event")

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx order.TxStore) error {
		for _, res := range pending {
			confirmed, err := tx.ConfirmReservation(ctx, res.ID)
			if err != nil {
				return fmt.Errorf("failed to confirm reservation %s: %w", res.ID, err)
			}
			if confirmed {
				result.ReservationIDs = append(result.ReservationIDs, res.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// transition applies a single-status move with no reservation cascade and no
// invoice: failed and refunded outcomes.
func (e *Engine) transition(ctx context.Context, o *order.Order, ev *event.NormalizedPaymentEvent, requestID string, from, to order.Status) (*Result, error) {
	if o.Status == to && (o.ProviderTransactionID == "" || o.ProviderTransactionID == ev.ProviderTransactionID) {
		return &Result{
			OrderID:   o.ID,
			Duplicate: true,
			Message:   fmt.Sprintf("order already %s", to),
		}, nil
	}
	if o.Status != from {
		return nil, &IllegalTransitionError{
			OrderID: o.ID,
			From:    o.Status,
			Kind:    ev.Kind,
			Reason:  fmt.Sprintf("transition requires status %q", from),
		}
	}

	result := &Result{
		OrderID: o.ID,
		Message: fmt.Sprintf("order %s", to),
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx order.TxStore) error {
		moved, err := tx.UpdateOrderStatus(ctx, o.ID, from, to, &order.TransitionParams{
			Provider:              string(ev.Provider),
			ProviderTransactionID: ev.ProviderTransactionID,
		})
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if !moved {
			return ErrConflict
		}

		if err := tx.AppendAudit(ctx, &order.AuditEntry{
			OrderID:               o.ID,
			Provider:              ev.Provider,
			EventID:               ev.EventID,
			EventKind:             string(ev.Kind),
			FromStatus:            from,
			ToStatus:              to,
			ProviderTransactionID: ev.ProviderTransactionID,
			RequestID:             requestID,
		}); err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}

		notifyPayload, err := json.Marshal(order.NotificationRequest{
			OrderID: o.ID,
			Kind:    string(ev.Kind),
		})
		if err != nil {
			return err
		}
		if err := tx.EnqueueSideEffect(ctx, &order.SideEffect{
			EventType:     kafka.EventNotificationRequired,
			Payload:       notifyPayload,
			PartitionKey:  o.ID,
			CorrelationID: ev.EventID,
		}); err != nil {
			return fmt.Errorf("failed to enqueue notification request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
