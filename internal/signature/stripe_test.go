package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

func signStripe(t *testing.T, secret string, ts int64, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "."))
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifyValid(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","created":1700000000,"data":{"object":{"id":"pi_1"}}}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signStripe(t, testSecret, now.Unix(), body))

	v := NewStripeVerifier(testSecret, 5*time.Minute)
	ev, err := v.Verify(context.Background(), headers, body, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ev.EventID != "evt_1" || ev.EventType != "payment_intent.succeeded" {
		t.Fatalf("unexpected event identity: %+v", ev)
	}
	if ev.Provider != "stripe" {
		t.Fatalf("provider = %q", ev.Provider)
	}
}

func TestStripeVerifyAlteredBody(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signStripe(t, testSecret, now.Unix(), body))

	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] = 'X'

	v := NewStripeVerifier(testSecret, 5*time.Minute)
	if _, err := v.Verify(context.Background(), headers, tampered, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestStripeVerifyWrongSecret(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signStripe(t, "whsec_other", now.Unix(), body))

	v := NewStripeVerifier(testSecret, 5*time.Minute)
	if _, err := v.Verify(context.Background(), headers, body, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestStripeVerifyExpiredTimestamp(t *testing.T) {
	now := time.Now()
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	old := now.Add(-10 * time.Minute).Unix()

	headers := http.Header{}
	headers.Set("Stripe-Signature", signStripe(t, testSecret, old, body))

	v := NewStripeVerifier(testSecret, 5*time.Minute)
	if _, err := v.Verify(context.Background(), headers, body, now); !errors.Is(err, ErrExpiredTimestamp) {
		t.Fatalf("expected ErrExpiredTimestamp, got %v", err)
	}
}

func TestStripeVerifyMissingHeader(t *testing.T) {
	v := NewStripeVerifier(testSecret, 5*time.Minute)
	_, err := v.Verify(context.Background(), http.Header{}, []byte(`{}`), time.Now())
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestStripeVerifyRotatedSecrets(t *testing.T) {
	// During rotation the header carries two v1 entries; either matching is enough.
	now := time.Now()
	body := []byte(`{"id":"evt_1","type":"charge.refunded"}`)

	oldSig := signStripe(t, "whsec_old", now.Unix(), body)
	goodSig := signStripe(t, testSecret, now.Unix(), body)
	// goodSig is "t=...,v1=..."; append its v1 to the old header.
	combined := oldSig + goodSig[len(fmt.Sprintf("t=%d", now.Unix())):]

	headers := http.Header{}
	headers.Set("Stripe-Signature", combined)

	v := NewStripeVerifier(testSecret, 5*time.Minute)
	if _, err := v.Verify(context.Background(), headers, body, now); err != nil {
		t.Fatalf("verify with rotated secrets: %v", err)
	}
}
