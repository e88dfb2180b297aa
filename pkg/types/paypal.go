package types

import "encoding/json"

// PayPalWebhookEvent is the envelope PayPal posts to the webhook endpoint.
type PayPalWebhookEvent struct {
	ID           string          `json:"id" validate:"required"`
	EventType    string          `json:"event_type" validate:"required"`
	CreateTime   string          `json:"create_time"`
	ResourceType string          `json:"resource_type"`
	Resource     PayPalResource  `json:"resource"`
	Raw          json.RawMessage `json:"-"`
}

// PayPalResource carries the capture/refund details of an event.
type PayPalResource struct {
	ID       string       `json:"id"`
	Status   string       `json:"status"`
	CustomID string       `json:"custom_id"`
	Amount   PayPalAmount `json:"amount"`
}

type PayPalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// PayPalVerifyRequest is the body for the verify-webhook-signature API.
type PayPalVerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// PayPalVerifyResponse is the provider's verdict on a transmission signature.
type PayPalVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// PayPalTokenResponse is the OAuth client-credentials grant response.
type PayPalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
