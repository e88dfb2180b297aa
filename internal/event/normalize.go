package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/soundforge/Tempo/internal/signature"
	"github.com/soundforge/Tempo/pkg/types"
)

// Kind is the internal payment event vocabulary. Everything a provider sends
// collapses onto these four values.
type Kind string

const (
	KindPaymentSucceeded Kind = "payment_succeeded"
	KindPaymentFailed    Kind = "payment_failed"
	KindPaymentRefunded  Kind = "payment_refunded"
	// KindIgnored marks event types the system does not subscribe to. They are
	// acknowledged with 200 so providers do not retry them forever.
	KindIgnored Kind = "ignored"
)

var (
	// ErrMissingCorrelationKey means the provider event carries no reference
	// back to an order. An integration bug, not a transient condition.
	ErrMissingCorrelationKey = errors.New("event carries no correlation key")
	// ErrMalformedPayload means the verified body could not be interpreted.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// NormalizedPaymentEvent is the provider-agnostic shape the reconciliation
// engine consumes.
type NormalizedPaymentEvent struct {
	Kind                  Kind           `validate:"required,oneof=payment_succeeded payment_failed payment_refunded ignored"`
	Provider              types.Provider `validate:"required,oneof=stripe paypal"`
	EventID               string         `validate:"required"`
	CorrelationKey        string
	AmountMinorUnits      int64
	Currency              string
	ProviderTransactionID string
}

var validate = validator.New()

// Normalize maps a verified provider event onto the internal vocabulary.
// Total over the subscribed event set; unknown types come back as KindIgnored.
func Normalize(ev *signature.VerifiedEvent) (*NormalizedPaymentEvent, error) {
	var (
		normalized *NormalizedPaymentEvent
		err        error
	)
	switch ev.Provider {
	case types.ProviderStripe:
		normalized, err = normalizeStripe(ev)
	case types.ProviderPayPal:
		normalized, err = normalizePayPal(ev)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrMalformedPayload, ev.Provider)
	}
	if err != nil {
		return nil, err
	}

	if normalized.Kind != KindIgnored && normalized.CorrelationKey == "" {
		return nil, ErrMissingCorrelationKey
	}
	if err := validate.Struct(normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return normalized, nil
}

func normalizeStripe(ev *signature.VerifiedEvent) (*NormalizedPaymentEvent, error) {
	var payload types.StripeWebhookEvent
	if err := json.Unmarshal(ev.RawPayload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	obj := payload.Data.Object

	normalized := &NormalizedPaymentEvent{
		Provider:       types.ProviderStripe,
		EventID:        ev.EventID,
		CorrelationKey: obj.Metadata["order_id"],
		Currency:       strings.ToUpper(obj.Currency),
	}

	switch payload.Type {
	case "checkout.session.completed":
		normalized.Kind = KindPaymentSucceeded
		normalized.AmountMinorUnits = obj.AmountTotal
		normalized.ProviderTransactionID = obj.PaymentIntent
		if normalized.ProviderTransactionID == "" {
			normalized.ProviderTransactionID = obj.ID
		}
	case "payment_intent.succeeded":
		normalized.Kind = KindPaymentSucceeded
		normalized.AmountMinorUnits = obj.Amount
		normalized.ProviderTransactionID = obj.ID
	case "payment_intent.payment_failed":
		normalized.Kind = KindPaymentFailed
		normalized.AmountMinorUnits = obj.Amount
		normalized.ProviderTransactionID = obj.ID
	case "charge.refunded":
		normalized.Kind = KindPaymentRefunded
		normalized.AmountMinorUnits = obj.AmountRefund
		normalized.ProviderTransactionID = obj.PaymentIntent
		if normalized.ProviderTransactionID == "" {
			normalized.ProviderTransactionID = obj.ID
		}
	default:
		normalized.Kind = KindIgnored
	}

	return normalized, nil
}

func normalizePayPal(ev *signature.VerifiedEvent) (*NormalizedPaymentEvent, error) {
	var payload types.PayPalWebhookEvent
	if err := json.Unmarshal(ev.RawPayload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	resource := payload.Resource

	normalized := &NormalizedPaymentEvent{
		Provider:              types.ProviderPayPal,
		EventID:               ev.EventID,
		CorrelationKey:        resource.CustomID,
		Currency:              strings.ToUpper(resource.Amount.CurrencyCode),
		ProviderTransactionID: resource.ID,
	}

	switch payload.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		normalized.Kind = KindPaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		normalized.Kind = KindPaymentFailed
	case "PAYMENT.CAPTURE.REFUNDED":
		normalized.Kind = KindPaymentRefunded
	default:
		normalized.Kind = KindIgnored
		return normalized, nil
	}

	amount, err := parseAmountMinor(resource.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrMalformedPayload, resource.Amount.Value)
	}
	normalized.AmountMinorUnits = amount

	return normalized, nil
}

// parseAmountMinor converts PayPal's decimal string ("99.00") into minor
// units. The platform only charges in two-decimal currencies.
func parseAmountMinor(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty amount")
	}
	whole, frac, found := strings.Cut(value, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	if !found {
		return units * 100, nil
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	if units < 0 {
		return units*100 - cents, nil
	}
	return units*100 + cents, nil
}
