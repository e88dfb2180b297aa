package types

// Provider identifies which payment provider delivered a webhook.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

// WebhookAck is the success response body for webhook endpoints.
// Returned both for freshly processed events and harmless duplicates.
type WebhookAck struct {
	Received       bool     `json:"received"`
	Message        string   `json:"message"`
	OrderID        string   `json:"order_id,omitempty"`
	ReservationIDs []string `json:"reservation_ids,omitempty"`
}

// WebhookError is the structured rejection body for webhook endpoints.
type WebhookError struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// ProviderHealth reports whether a provider is fully configured.
// Secret values are never included, only presence.
type ProviderHealth struct {
	Configured bool `json:"configured"`
}

// HealthResponse is the read-only status surface.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Providers map[string]ProviderHealth `json:"providers"`
	Database  bool                      `json:"database"`
	Redis     bool                      `json:"redis"`
}
