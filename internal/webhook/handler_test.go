package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soundforge/Tempo/internal/config"
	"github.com/soundforge/Tempo/internal/event"
	"github.com/soundforge/Tempo/internal/reconcile"
	"github.com/soundforge/Tempo/internal/redis"
	"github.com/soundforge/Tempo/internal/signature"
	"github.com/soundforge/Tempo/pkg/types"
)

type fakeVerifier struct {
	provider types.Provider
	event    *signature.VerifiedEvent
	err      error
	calls    int
}

func (f *fakeVerifier) Provider() types.Provider {
	return f.provider
}

func (f *fakeVerifier) Verify(ctx context.Context, headers http.Header, body []byte, now time.Time) (*signature.VerifiedEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	ev := *f.event
	ev.RawPayload = body
	return &ev, nil
}

type fakeIdempotency struct {
	reservation *redis.EventReservation
	completed   map[string]*redis.EventOutcome
	released    []string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{
		reservation: &redis.EventReservation{IsNew: true},
		completed:   make(map[string]*redis.EventOutcome),
	}
}

func (f *fakeIdempotency) CheckAndReserve(ctx context.Context, provider types.Provider, eventID string, pendingTTL time.Duration) (*redis.EventReservation, error) {
	return f.reservation, nil
}

func (f *fakeIdempotency) MarkCompleted(ctx context.Context, provider types.Provider, eventID string, outcome *redis.EventOutcome, ttl time.Duration) error {
	f.completed[eventID] = outcome
	return nil
}

func (f *fakeIdempotency) Release(ctx context.Context, provider types.Provider, eventID string) error {
	f.released = append(f.released, eventID)
	return nil
}

type fakeTracker struct {
	failures []string
	over     bool
}

func (f *fakeTracker) RecordFailure(ctx context.Context, sourceKey string) (bool, error) {
	f.failures = append(f.failures, sourceKey)
	return f.over, nil
}

func (f *fakeTracker) OverThreshold(ctx context.Context, sourceKey string) (bool, error) {
	return f.over, nil
}

type fakeEngine struct {
	result *reconcile.Result
	errs   []error
	calls  int
}

func (f *fakeEngine) Apply(ctx context.Context, ev *event.NormalizedPaymentEvent, requestID string) (*reconcile.Result, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

func webhookCfg() *config.WebhookConfig {
	return &config.WebhookConfig{
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		IdempotencyTTL: time.Hour,
		PendingTTL:     time.Minute,
	}
}

func stripePayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_1",
		"type":    "checkout.session.completed",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_1",
				"payment_intent": "pi_123",
				"amount_total":   12000,
				"currency":       "usd",
				"metadata":       map[string]string{"order_id": "ord_1"},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func stripeVerifier() *fakeVerifier {
	return &fakeVerifier{
		provider: types.ProviderStripe,
		event: &signature.VerifiedEvent{
			Provider:   types.ProviderStripe,
			EventID:    "evt_1",
			EventType:  "checkout.session.completed",
			OccurredAt: time.Now(),
		},
	}
}

func postStripe(t *testing.T, handler *Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleStripe(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) types.WebhookAck {
	t.Helper()
	var ack types.WebhookAck
	if err := json.NewDecoder(rec.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	return ack
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.WebhookError {
	t.Helper()
	var webhookErr types.WebhookError
	if err := json.NewDecoder(rec.Body).Decode(&webhookErr); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return webhookErr
}

func TestHandleStripeProcessesDelivery(t *testing.T) {
	idem := newFakeIdempotency()
	engine := &fakeEngine{result: &reconcile.Result{
		OrderID:        "ord_1",
		ReservationIDs: []string{"res_1"},
		Message:        "order paid",
	}}
	service := NewService(webhookCfg(), []signature.Verifier{stripeVerifier()}, idem, &fakeTracker{}, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	ack := decodeAck(t, rec)
	if !ack.Received || ack.OrderID != "ord_1" {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if engine.calls != 1 {
		t.Errorf("expected 1 engine call, got %d", engine.calls)
	}
	outcome, ok := idem.completed["evt_1"]
	if !ok {
		t.Fatal("completion marker not written")
	}
	if outcome.OrderID != "ord_1" {
		t.Errorf("completion marker carries %q", outcome.OrderID)
	}
}

func TestHandleStripeRejectsInvalidSignature(t *testing.T) {
	verifier := stripeVerifier()
	verifier.err = signature.ErrInvalidSignature
	tracker := &fakeTracker{}
	engine := &fakeEngine{}
	service := NewService(webhookCfg(), []signature.Verifier{verifier}, newFakeIdempotency(), tracker, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != CodeInvalidSignature {
		t.Errorf("expected code %q, got %q", CodeInvalidSignature, got)
	}
	if engine.calls != 0 {
		t.Error("engine must not run for unverified payloads")
	}
	if len(tracker.failures) != 1 || tracker.failures[0] != "192.0.2.1" {
		t.Errorf("expected one recorded failure for the source IP, got %v", tracker.failures)
	}
	if verifier.calls != 1 {
		t.Errorf("terminal verification error must not be retried, got %d calls", verifier.calls)
	}
}

func TestHandleStripeRetriesUnavailableVerification(t *testing.T) {
	verifier := stripeVerifier()
	verifier.err = signature.ErrVerificationUnavailable
	service := NewService(webhookCfg(), []signature.Verifier{verifier}, newFakeIdempotency(), &fakeTracker{}, &fakeEngine{})
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != CodeVerificationUnavailable {
		t.Errorf("expected code %q, got %q", CodeVerificationUnavailable, got)
	}
	if verifier.calls != 3 {
		t.Errorf("expected 3 verification attempts, got %d", verifier.calls)
	}
}

func TestHandleStripeShortCircuitsInFlightDuplicate(t *testing.T) {
	idem := newFakeIdempotency()
	idem.reservation = &redis.EventReservation{InFlight: true}
	engine := &fakeEngine{}
	service := NewService(webhookCfg(), []signature.Verifier{stripeVerifier()}, idem, &fakeTracker{}, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if engine.calls != 0 {
		t.Error("in-flight duplicate must not reach the engine")
	}
}

func TestHandleStripeReturnsPriorOutcome(t *testing.T) {
	idem := newFakeIdempotency()
	idem.reservation = &redis.EventReservation{
		PriorOutcome: &redis.EventOutcome{
			OrderID:        "ord_1",
			ReservationIDs: []string{"res_1", "res_2"},
		},
	}
	engine := &fakeEngine{}
	service := NewService(webhookCfg(), []signature.Verifier{stripeVerifier()}, idem, &fakeTracker{}, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ack := decodeAck(t, rec)
	if ack.OrderID != "ord_1" || len(ack.ReservationIDs) != 2 {
		t.Errorf("prior outcome not echoed: %+v", ack)
	}
	if engine.calls != 0 {
		t.Error("completed duplicate must not reach the engine")
	}
}

func TestHandleStripeAcksUnsubscribedEventTypes(t *testing.T) {
	verifier := stripeVerifier()
	verifier.event.EventType = "customer.subscription.deleted"
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_noise",
		"type": "customer.subscription.deleted",
		"data": map[string]any{"object": map[string]any{"id": "sub_1"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	idem := newFakeIdempotency()
	idem.reservation = nil // reservation must never be consulted
	engine := &fakeEngine{}
	service := NewService(webhookCfg(), []signature.Verifier{verifier}, idem, &fakeTracker{}, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if engine.calls != 0 {
		t.Error("unsubscribed event must not reach the engine")
	}
}

func TestHandleStripeReleasesReservationOnTerminalRejection(t *testing.T) {
	idem := newFakeIdempotency()
	engine := &fakeEngine{errs: []error{&reconcile.IllegalTransitionError{
		OrderID: "ord_1",
		Reason:  "transition requires status \"paid\"",
	}}}
	service := NewService(webhookCfg(), []signature.Verifier{stripeVerifier()}, idem, &fakeTracker{}, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != CodeIllegalTransition {
		t.Errorf("expected code %q, got %q", CodeIllegalTransition, got)
	}
	if len(idem.released) != 1 || idem.released[0] != "evt_1" {
		t.Errorf("reservation must be released so redelivery can reprocess, got %v", idem.released)
	}
	if engine.calls != 1 {
		t.Errorf("terminal engine error must not be retried, got %d calls", engine.calls)
	}
}

func TestHandleStripeRetriesTransientEngineErrors(t *testing.T) {
	idem := newFakeIdempotency()
	transient := errors.New("deadline exceeded")
	engine := &fakeEngine{
		errs:   []error{transient, transient, nil},
		result: &reconcile.Result{OrderID: "ord_1", Message: "order paid"},
	}
	service := NewService(webhookCfg(), []signature.Verifier{stripeVerifier()}, idem, &fakeTracker{}, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after retries, got %d: %s", rec.Code, rec.Body.String())
	}
	if engine.calls != 3 {
		t.Errorf("expected 3 engine attempts, got %d", engine.calls)
	}
	if len(idem.released) != 0 {
		t.Error("successful processing must keep the reservation")
	}
}

func TestHandleStripeFailsAfterExhaustedRetries(t *testing.T) {
	idem := newFakeIdempotency()
	transient := errors.New("deadline exceeded")
	engine := &fakeEngine{errs: []error{transient, transient, transient}}
	service := NewService(webhookCfg(), []signature.Verifier{stripeVerifier()}, idem, &fakeTracker{}, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(idem.released) != 1 {
		t.Error("exhausted retries must release the reservation for redelivery")
	}
}

func TestHandleStripeRejectsUnknownOrder(t *testing.T) {
	engine := &fakeEngine{errs: []error{reconcile.ErrUnknownOrder}}
	tracker := &fakeTracker{}
	service := NewService(webhookCfg(), []signature.Verifier{stripeVerifier()}, newFakeIdempotency(), tracker, engine)
	handler := NewHandler(service)

	rec := postStripe(t, handler, stripePayload(t))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != CodeUnknownOrder {
		t.Errorf("expected code %q, got %q", CodeUnknownOrder, got)
	}
	if len(tracker.failures) != 1 {
		t.Errorf("unknown order must count as a rejection, got %v", tracker.failures)
	}
}

func TestHandleRejectsOversizedPayload(t *testing.T) {
	service := NewService(webhookCfg(), []signature.Verifier{stripeVerifier()}, newFakeIdempotency(), &fakeTracker{}, &fakeEngine{})
	handler := NewHandler(service)

	rec := postStripe(t, handler, bytes.Repeat([]byte("a"), maxBodyBytes+1))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHandleUnconfiguredProvider(t *testing.T) {
	service := NewService(webhookCfg(), nil, newFakeIdempotency(), &fakeTracker{}, &fakeEngine{})
	handler := NewHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	handler.HandlePayPal(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != CodeProviderNotConfigured {
		t.Errorf("expected code %q, got %q", CodeProviderNotConfigured, got)
	}
}
