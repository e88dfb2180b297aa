package psp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soundforge/Tempo/pkg/types"
)

func newVerifyServer(t *testing.T, status string, tokenCalls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			*tokenCalls++
			json.NewEncoder(w).Encode(types.PayPalTokenResponse{
				AccessToken: "tok-1",
				TokenType:   "Bearer",
				ExpiresIn:   3600,
			})
		case "/v1/notifications/verify-webhook-signature":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Errorf("missing bearer token, got %q", got)
			}
			json.NewEncoder(w).Encode(types.PayPalVerifyResponse{VerificationStatus: status})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestVerifyWebhookSignatureSuccess(t *testing.T) {
	var tokenCalls int
	srv := newVerifyServer(t, "SUCCESS", &tokenCalls)
	defer srv.Close()

	client := NewPayPalClient("id", "secret", srv.URL)
	ok, err := client.VerifyWebhookSignature(context.Background(), &types.PayPalVerifyRequest{WebhookID: "wh-1"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected SUCCESS verdict")
	}

	// Second call reuses the cached token.
	if _, err := client.VerifyWebhookSignature(context.Background(), &types.PayPalVerifyRequest{WebhookID: "wh-1"}); err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if tokenCalls != 1 {
		t.Fatalf("token fetched %d times, want 1", tokenCalls)
	}
}

func TestVerifyWebhookSignatureFailureVerdict(t *testing.T) {
	var tokenCalls int
	srv := newVerifyServer(t, "FAILURE", &tokenCalls)
	defer srv.Close()

	client := NewPayPalClient("id", "secret", srv.URL)
	ok, err := client.VerifyWebhookSignature(context.Background(), &types.PayPalVerifyRequest{WebhookID: "wh-1"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("FAILURE verdict must not verify")
	}
}

func TestVerifyWebhookSignatureUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // deliberately closed

	client := NewPayPalClient("id", "secret", srv.URL)
	if _, err := client.VerifyWebhookSignature(context.Background(), &types.PayPalVerifyRequest{}); err == nil {
		t.Fatal("expected transport error against closed server")
	}
}
