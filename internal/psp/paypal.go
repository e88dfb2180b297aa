package psp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/soundforge/Tempo/pkg/types"
)

const verificationSuccess = "SUCCESS"

// PayPalClient talks to the PayPal REST API. It owns the OAuth
// client-credentials token and refreshes it when it nears expiry.
type PayPalClient struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	baseURL      string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalClient(clientID, clientSecret, baseURL string) *PayPalClient {
	return &PayPalClient{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		},
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      baseURL,
	}
}

// VerifyWebhookSignature asks PayPal to validate a transmission signature
// against its own certificate chain. Returns false for a definitive FAILURE
// verdict; any transport or API error is returned as-is so the caller can
// classify it as retryable.
func (c *PayPalClient) VerifyWebhookSignature(ctx context.Context, req *types.PayPalVerifyRequest) (bool, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", req)
	if err != nil {
		return false, err
	}

	var resp types.PayPalVerifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return false, fmt.Errorf("failed to parse verification response: %w", err)
	}

	return resp.VerificationStatus == verificationSuccess, nil
}

// token returns a valid access token, fetching a new one when the cached
// token has less than a minute of life left.
func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("paypal token error: status=%d", resp.StatusCode)
	}

	var tokenResp types.PayPalTokenResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *PayPalClient) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal request body")
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error().Err(err).
			Str("method", method).
			Str("url", reqURL).
			Int64("duration_ms", duration).
			Msg("HTTP request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).
			Str("method", method).
			Str("url", reqURL).
			Int64("duration_ms", duration).
			Msg("Failed to read response body")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("url", reqURL).
			Int64("duration_ms", duration).
			Msg("PayPal API error response")
		return nil, fmt.Errorf("paypal error: status=%d", resp.StatusCode)
	}

	log.Info().
		Int("status", resp.StatusCode).
		Str("method", method).
		Str("url", reqURL).
		Int64("duration_ms", duration).
		Msg("PayPal API request successful")

	return respBody, nil
}
