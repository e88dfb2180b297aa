package types

// StripeWebhookEvent is the envelope Stripe posts to the webhook endpoint.
// Only the fields the reconciliation pipeline reads are mapped; the raw body
// is what gets signed, so it is never re-marshalled.
type StripeWebhookEvent struct {
	ID      string           `json:"id" validate:"required"`
	Type    string           `json:"type" validate:"required"`
	Created int64            `json:"created"`
	Data    StripeWebhookObj `json:"data"`
}

type StripeWebhookObj struct {
	Object StripeObject `json:"object"`
}

// StripeObject is the union of the checkout-session / payment-intent / charge
// fields the normalizer cares about.
type StripeObject struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	Amount        int64             `json:"amount"`
	AmountTotal   int64             `json:"amount_total"`
	AmountRefund  int64             `json:"amount_refunded"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}
