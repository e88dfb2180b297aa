package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/soundforge/Tempo/internal/config"
	"github.com/soundforge/Tempo/internal/event"
	"github.com/soundforge/Tempo/internal/failure"
	"github.com/soundforge/Tempo/internal/middleware"
	"github.com/soundforge/Tempo/internal/reconcile"
	"github.com/soundforge/Tempo/internal/redis"
	"github.com/soundforge/Tempo/internal/retry"
	"github.com/soundforge/Tempo/internal/signature"
	"github.com/soundforge/Tempo/pkg/types"
)

// Rejection codes returned in the error body.
const (
	CodeMissingSignature        = "missing_signature"
	CodeInvalidSignature        = "invalid_signature"
	CodeExpiredTimestamp        = "expired_timestamp"
	CodeMissingHeaders          = "missing_headers"
	CodeMalformedPayload        = "malformed_payload"
	CodeMissingCorrelationKey   = "missing_correlation_key"
	CodeUnknownOrder            = "unknown_order"
	CodeIllegalTransition       = "illegal_transition"
	CodeProviderNotConfigured   = "provider_not_configured"
	CodeVerificationUnavailable = "verification_unavailable"
	CodeInternal                = "internal_error"
)

// Rejection is a webhook delivery the pipeline refused, carrying the HTTP
// status and machine-readable code for the response body.
type Rejection struct {
	Status int
	Code   string
	Err    error
}

func (r *Rejection) Error() string {
	return r.Err.Error()
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// IdempotencyStore is the at-most-once-per-event guard backed by Redis.
type IdempotencyStore interface {
	CheckAndReserve(ctx context.Context, provider types.Provider, eventID string, pendingTTL time.Duration) (*redis.EventReservation, error)
	MarkCompleted(ctx context.Context, provider types.Provider, eventID string, outcome *redis.EventOutcome, ttl time.Duration) error
	Release(ctx context.Context, provider types.Provider, eventID string) error
}

// Reconciler applies a normalized event to order state.
type Reconciler interface {
	Apply(ctx context.Context, ev *event.NormalizedPaymentEvent, requestID string) (*reconcile.Result, error)
}

// Service runs the ingestion pipeline: verify, normalize, reserve the event
// ID, reconcile under retry, record the outcome.
type Service struct {
	verifiers   map[types.Provider]signature.Verifier
	idempotency IdempotencyStore
	failures    failure.Tracker
	engine      Reconciler
	policy      retry.Policy
	pendingTTL  time.Duration
	outcomeTTL  time.Duration
}

func NewService(cfg *config.WebhookConfig, verifiers []signature.Verifier, idempotency IdempotencyStore, failures failure.Tracker, engine Reconciler) *Service {
	byProvider := make(map[types.Provider]signature.Verifier, len(verifiers))
	for _, v := range verifiers {
		byProvider[v.Provider()] = v
	}
	return &Service{
		verifiers:   byProvider,
		idempotency: idempotency,
		failures:    failures,
		engine:      engine,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		pendingTTL: cfg.PendingTTL,
		outcomeTTL: cfg.IdempotencyTTL,
	}
}

// Process handles one delivery. A nil error means the provider gets a 200;
// otherwise the error is a *Rejection (or treated as internal by the handler).
// sourceIP keys the failure-rate tracker so a misbehaving or spoofing caller
// is visible per source, not just per provider.
func (s *Service) Process(ctx context.Context, provider types.Provider, headers http.Header, body []byte, requestID, sourceIP string) (*types.WebhookAck, error) {
	logger := middleware.GetLogger(ctx)

	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, &Rejection{
			Status: http.StatusServiceUnavailable,
			Code:   CodeProviderNotConfigured,
			Err:    errors.New("webhook verification is not configured for this provider"),
		}
	}

	verified, err := s.verify(ctx, verifier, headers, body)
	if err != nil {
		if signature.IsTerminal(err) {
			s.recordFailure(ctx, sourceIP)
			return nil, &Rejection{Status: http.StatusBadRequest, Code: verificationCode(err), Err: err}
		}
		return nil, &Rejection{Status: http.StatusServiceUnavailable, Code: CodeVerificationUnavailable, Err: err}
	}

	normalized, err := event.Normalize(verified)
	if err != nil {
		s.recordFailure(ctx, sourceIP)
		code := CodeMalformedPayload
		if errors.Is(err, event.ErrMissingCorrelationKey) {
			code = CodeMissingCorrelationKey
		}
		return nil, &Rejection{Status: http.StatusBadRequest, Code: code, Err: err}
	}

	if normalized.Kind == event.KindIgnored {
		// Not subscribed. Acknowledge so the provider stops redelivering;
		// no state was touched, so no idempotency reservation either.
		logger.Debug().
			Str("provider", string(provider)).
			Str("eventId", verified.EventID).
			Str("eventType", verified.EventType).
			Msg("ignoring unsubscribed event type")
		return &types.WebhookAck{Received: true, Message: "event type not subscribed"}, nil
	}

	reservation, err := s.idempotency.CheckAndReserve(ctx, provider, verified.EventID, s.pendingTTL)
	if err != nil {
		// Without the reservation we cannot bound reprocessing. Refuse and
		// let the provider redeliver.
		return nil, &Rejection{Status: http.StatusInternalServerError, Code: CodeInternal, Err: err}
	}
	if !reservation.IsNew {
		return duplicateAck(reservation), nil
	}

	result, err := s.reconcile(ctx, normalized, requestID)
	if err != nil {
		// Drop the reservation either way: a terminal rejection may become
		// processable later (refund delivered before its paid event), and an
		// exhausted transient error must be retried by redelivery.
		if relErr := s.idempotency.Release(ctx, provider, verified.EventID); relErr != nil {
			logger.Warn().Err(relErr).
				Str("eventId", verified.EventID).
				Msg("failed to release idempotency reservation")
		}
		return nil, s.reconcileRejection(ctx, sourceIP, err)
	}

	outcome := &redis.EventOutcome{
		OrderID:        result.OrderID,
		ReservationIDs: result.ReservationIDs,
		ProcessedAt:    time.Now().Unix(),
	}
	if err := s.idempotency.MarkCompleted(ctx, provider, verified.EventID, outcome, s.outcomeTTL); err != nil {
		// The transaction committed; redelivery re-runs the engine, which
		// recognizes the duplicate outcome. Log and acknowledge.
		logger.Warn().Err(err).
			Str("eventId", verified.EventID).
			Msg("failed to record completion marker")
	}

	logger.Info().
		Str("provider", string(provider)).
		Str("eventId", verified.EventID).
		Str("orderId", result.OrderID).
		Str("kind", string(normalized.Kind)).
		Bool("duplicate", result.Duplicate).
		Msg("webhook processed")

	return &types.WebhookAck{
		Received:       true,
		Message:        result.Message,
		OrderID:        result.OrderID,
		ReservationIDs: result.ReservationIDs,
	}, nil
}

// verify wraps verification in the retry loop so a flapping remote
// verification API gets a few chances before we give up.
func (s *Service) verify(ctx context.Context, verifier signature.Verifier, headers http.Header, body []byte) (*signature.VerifiedEvent, error) {
	var verified *signature.VerifiedEvent
	err := retry.Do(ctx, s.policy, func(err error) bool {
		return errors.Is(err, signature.ErrVerificationUnavailable)
	}, func(ctx context.Context) error {
		var err error
		verified, err = verifier.Verify(ctx, headers, body, time.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

func (s *Service) reconcile(ctx context.Context, normalized *event.NormalizedPaymentEvent, requestID string) (*reconcile.Result, error) {
	var result *reconcile.Result
	err := retry.Do(ctx, s.policy, transientReconcileError, func(ctx context.Context) error {
		r, err := s.engine.Apply(ctx, normalized, requestID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) reconcileRejection(ctx context.Context, sourceIP string, err error) error {
	var illegal *reconcile.IllegalTransitionError
	switch {
	case errors.Is(err, reconcile.ErrUnknownOrder):
		s.recordFailure(ctx, sourceIP)
		return &Rejection{Status: http.StatusBadRequest, Code: CodeUnknownOrder, Err: err}
	case errors.As(err, &illegal):
		s.recordFailure(ctx, sourceIP)
		return &Rejection{Status: http.StatusBadRequest, Code: CodeIllegalTransition, Err: err}
	default:
		return &Rejection{Status: http.StatusInternalServerError, Code: CodeInternal, Err: err}
	}
}

// recordFailure feeds the per-provider rejection tracker. Fail-open: tracker
// errors never block webhook processing.
func (s *Service) recordFailure(ctx context.Context, sourceIP string) {
	over, err := s.failures.RecordFailure(ctx, sourceIP)
	if err != nil {
		middleware.GetLogger(ctx).Warn().Err(err).
			Str("source_ip", sourceIP).
			Msg("failure tracker unavailable")
		return
	}
	if over {
		middleware.GetLogger(ctx).Error().
			Str("source_ip", sourceIP).
			Msg("webhook rejection rate over threshold")
	}
}

func transientReconcileError(err error) bool {
	var illegal *reconcile.IllegalTransitionError
	if errors.Is(err, reconcile.ErrUnknownOrder) || errors.As(err, &illegal) {
		return false
	}
	return true
}

func duplicateAck(reservation *redis.EventReservation) *types.WebhookAck {
	if reservation.InFlight {
		return &types.WebhookAck{Received: true, Message: "delivery already in flight"}
	}
	ack := &types.WebhookAck{Received: true, Message: "event already processed"}
	if reservation.PriorOutcome != nil {
		ack.OrderID = reservation.PriorOutcome.OrderID
		ack.ReservationIDs = reservation.PriorOutcome.ReservationIDs
	}
	return ack
}

func verificationCode(err error) string {
	switch {
	case errors.Is(err, signature.ErrMissingSignature):
		return CodeMissingSignature
	case errors.Is(err, signature.ErrExpiredTimestamp):
		return CodeExpiredTimestamp
	case errors.Is(err, signature.ErrMissingHeaders):
		return CodeMissingHeaders
	default:
		return CodeInvalidSignature
	}
}
