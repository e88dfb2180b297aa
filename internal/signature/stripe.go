package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soundforge/Tempo/pkg/types"
)

const stripeSignatureHeader = "Stripe-Signature"

// StripeVerifier checks the HMAC scheme Stripe uses for webhooks:
// `Stripe-Signature: t=<unix>,v1=<hex hmac-sha256>` where the MAC covers
// `<unix>.<raw body>`. The timestamp check doubles as the replay guard for
// this provider.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string, tolerance time.Duration) *StripeVerifier {
	return &StripeVerifier{
		secret:    secret,
		tolerance: tolerance,
	}
}

func (v *StripeVerifier) Provider() types.Provider {
	return types.ProviderStripe
}

func (v *StripeVerifier) Verify(_ context.Context, headers http.Header, body []byte, now time.Time) (*VerifiedEvent, error) {
	header := headers.Get(stripeSignatureHeader)
	if header == "" {
		return nil, ErrMissingSignature
	}

	timestamp, signatures, err := parseStripeSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	if v.tolerance > 0 {
		signedAt := time.Unix(timestamp, 0)
		skew := now.Sub(signedAt)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return nil, ErrExpiredTimestamp
		}
	}

	expected := computeStripeSignature(v.secret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrInvalidSignature
	}

	var event types.StripeWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: body is not a stripe event", ErrInvalidSignature)
	}

	return &VerifiedEvent{
		Provider:   types.ProviderStripe,
		EventID:    event.ID,
		EventType:  event.Type,
		OccurredAt: time.Unix(timestamp, 0),
		RawPayload: body,
	}, nil
}

// parseStripeSignatureHeader splits `t=<ts>,v1=<sig>[,v1=<sig>...]`.
// Multiple v1 entries are legal during secret rotation.
func parseStripeSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64
		signatures []string
		hasTS      bool
	)

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
			}
			timestamp = ts
			hasTS = true
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if !hasTS || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: header must carry t and v1", ErrMissingSignature)
	}
	return timestamp, signatures, nil
}

func computeStripeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
