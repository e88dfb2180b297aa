package signature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/soundforge/Tempo/pkg/types"
)

const (
	headerTransmissionID   = "Paypal-Transmission-Id"
	headerTransmissionTime = "Paypal-Transmission-Time"
	headerTransmissionSig  = "Paypal-Transmission-Sig"
	headerCertURL          = "Paypal-Cert-Url"
	headerAuthAlgo         = "Paypal-Auth-Algo"
)

// VerificationService is the remote certificate-based check PayPal exposes.
// Cert fetching and caching live behind the provider API, not here.
type VerificationService interface {
	VerifyWebhookSignature(ctx context.Context, req *types.PayPalVerifyRequest) (bool, error)
}

// PayPalVerifier authenticates PayPal's multi-header transmission signature.
// All five headers must be present before any remote call is made; a partial
// set fails closed.
type PayPalVerifier struct {
	webhookID string
	service   VerificationService
	tolerance time.Duration
}

func NewPayPalVerifier(webhookID string, service VerificationService, tolerance time.Duration) *PayPalVerifier {
	return &PayPalVerifier{
		webhookID: webhookID,
		service:   service,
		tolerance: tolerance,
	}
}

func (v *PayPalVerifier) Provider() types.Provider {
	return types.ProviderPayPal
}

func (v *PayPalVerifier) Verify(ctx context.Context, headers http.Header, body []byte, now time.Time) (*VerifiedEvent, error) {
	required := []string{
		headerTransmissionID,
		headerTransmissionTime,
		headerTransmissionSig,
		headerCertURL,
		headerAuthAlgo,
	}
	for _, h := range required {
		if headers.Get(h) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeaders, h)
		}
	}

	transmissionTime, err := time.Parse(time.RFC3339, headers.Get(headerTransmissionTime))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed transmission time", ErrInvalidSignature)
	}
	if v.tolerance > 0 {
		skew := now.Sub(transmissionTime)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return nil, ErrExpiredTimestamp
		}
	}

	ok, err := v.service.VerifyWebhookSignature(ctx, &types.PayPalVerifyRequest{
		AuthAlgo:         headers.Get(headerAuthAlgo),
		CertURL:          headers.Get(headerCertURL),
		TransmissionID:   headers.Get(headerTransmissionID),
		TransmissionSig:  headers.Get(headerTransmissionSig),
		TransmissionTime: headers.Get(headerTransmissionTime),
		WebhookID:        v.webhookID,
		WebhookEvent:     json.RawMessage(body),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if !ok {
		return nil, ErrInvalidSignature
	}

	var event types.PayPalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: body is not a paypal event", ErrInvalidSignature)
	}

	return &VerifiedEvent{
		Provider:   types.ProviderPayPal,
		EventID:    event.ID,
		EventType:  event.EventType,
		OccurredAt: transmissionTime,
		RawPayload: body,
	}, nil
}
