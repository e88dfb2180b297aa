package event

import (
	"errors"
	"testing"
	"time"

	"github.com/soundforge/Tempo/internal/signature"
	"github.com/soundforge/Tempo/pkg/types"
)

func stripeEvent(t *testing.T, eventID, eventType, body string) *signature.VerifiedEvent {
	t.Helper()
	return &signature.VerifiedEvent{
		Provider:   types.ProviderStripe,
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: time.Now(),
		RawPayload: []byte(body),
	}
}

func TestNormalizeStripeCheckoutCompleted(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "checkout.session.completed",
		`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","amount_total":9900,"currency":"usd","payment_intent":"pi_9","metadata":{"order_id":"ord_1"}}}}`)

	got, err := Normalize(ev)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Kind != KindPaymentSucceeded {
		t.Fatalf("kind = %q", got.Kind)
	}
	if got.CorrelationKey != "ord_1" {
		t.Fatalf("correlation key = %q", got.CorrelationKey)
	}
	if got.AmountMinorUnits != 9900 || got.Currency != "USD" {
		t.Fatalf("amount = %d %s", got.AmountMinorUnits, got.Currency)
	}
	if got.ProviderTransactionID != "pi_9" {
		t.Fatalf("txn id = %q", got.ProviderTransactionID)
	}
}

func TestNormalizeStripeRefund(t *testing.T) {
	ev := stripeEvent(t, "evt_2", "charge.refunded",
		`{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","amount_refunded":9900,"currency":"usd","payment_intent":"pi_9","metadata":{"order_id":"ord_1"}}}}`)

	got, err := Normalize(ev)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Kind != KindPaymentRefunded {
		t.Fatalf("kind = %q", got.Kind)
	}
}

func TestNormalizeStripeUnsubscribedType(t *testing.T) {
	ev := stripeEvent(t, "evt_3", "customer.created",
		`{"id":"evt_3","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)

	got, err := Normalize(ev)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Kind != KindIgnored {
		t.Fatalf("unsubscribed type must normalize to ignored, got %q", got.Kind)
	}
}

func TestNormalizeStripeMissingCorrelationKey(t *testing.T) {
	ev := stripeEvent(t, "evt_4", "payment_intent.succeeded",
		`{"id":"evt_4","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","amount":500,"currency":"usd"}}}`)

	_, err := Normalize(ev)
	if !errors.Is(err, ErrMissingCorrelationKey) {
		t.Fatalf("expected ErrMissingCorrelationKey, got %v", err)
	}
}

func TestNormalizePayPalCaptureCompleted(t *testing.T) {
	ev := &signature.VerifiedEvent{
		Provider:   types.ProviderPayPal,
		EventID:    "WH-1",
		EventType:  "PAYMENT.CAPTURE.COMPLETED",
		RawPayload: []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"cap_1","status":"COMPLETED","custom_id":"ord_7","amount":{"currency_code":"usd","value":"129.50"}}}`),
	}

	got, err := Normalize(ev)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Kind != KindPaymentSucceeded {
		t.Fatalf("kind = %q", got.Kind)
	}
	if got.CorrelationKey != "ord_7" || got.ProviderTransactionID != "cap_1" {
		t.Fatalf("identity: %+v", got)
	}
	if got.AmountMinorUnits != 12950 || got.Currency != "USD" {
		t.Fatalf("amount = %d %s", got.AmountMinorUnits, got.Currency)
	}
}

func TestNormalizePayPalIgnored(t *testing.T) {
	ev := &signature.VerifiedEvent{
		Provider:   types.ProviderPayPal,
		EventID:    "WH-2",
		EventType:  "BILLING.PLAN.CREATED",
		RawPayload: []byte(`{"id":"WH-2","event_type":"BILLING.PLAN.CREATED","resource":{}}`),
	}

	got, err := Normalize(ev)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Kind != KindIgnored {
		t.Fatalf("kind = %q", got.Kind)
	}
}

func TestParseAmountMinor(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"99.00", 9900},
		{"129.5", 12950},
		{"0.99", 99},
		{"10", 1000},
	}
	for _, c := range cases {
		got, err := parseAmountMinor(c.in)
		if err != nil {
			t.Fatalf("parse %q: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("parse %q = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := parseAmountMinor("not-a-number"); err == nil {
		t.Fatal("expected error for junk amount")
	}
}
