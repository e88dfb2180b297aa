package signature

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/soundforge/Tempo/pkg/types"
)

var (
	// ErrMissingSignature means the provider's signature header was absent.
	ErrMissingSignature = errors.New("signature header is required")
	// ErrInvalidSignature means the signature did not match the payload.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrExpiredTimestamp means the signing timestamp is outside the allowed skew.
	ErrExpiredTimestamp = errors.New("signature timestamp outside allowed skew")
	// ErrMissingHeaders means one or more required transmission headers were absent.
	ErrMissingHeaders = errors.New("required signature headers are missing")
	// ErrVerificationUnavailable means the provider's verification service could
	// not be reached. The only retryable verification failure.
	ErrVerificationUnavailable = errors.New("verification service unavailable")
)

// VerifiedEvent is a webhook whose origin has been authenticated. The raw
// payload is kept only so the normalizer can parse the exact signed bytes.
type VerifiedEvent struct {
	Provider   types.Provider
	EventID    string
	EventType  string
	OccurredAt time.Time
	RawPayload []byte
}

// Verifier authenticates an inbound webhook for one provider. Implementations
// are selected by route so each provider's header/crypto scheme stays
// isolated.
type Verifier interface {
	Provider() types.Provider
	Verify(ctx context.Context, headers http.Header, body []byte, now time.Time) (*VerifiedEvent, error)
}

// IsTerminal reports whether a verification error can never succeed on retry.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpiredTimestamp) ||
		errors.Is(err, ErrMissingHeaders)
}
