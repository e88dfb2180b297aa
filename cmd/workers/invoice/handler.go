package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/soundforge/Tempo/internal/kafka"
	"github.com/soundforge/Tempo/internal/order"
	"github.com/soundforge/Tempo/internal/redis"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// invoiceHandler renders an invoice for a freshly paid order. Re-delivery is
// harmless: the conditional invoice_url write only ever lands once, and the
// collaborator's render endpoint is safely re-triggerable.
func invoiceHandler(orders *order.Repository, redisClient *redis.Client, invoiceServiceURL string, log *zerolog.Logger) kafka.Handler {
	return func(ctx context.Context, msg *kafka.Message) error {
		log.Info().Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("Processing invoice request")

		var req order.InvoiceRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal invoice request")
			return nil // Poison message, retrying cannot help
		}

		o, err := orders.GetByCorrelationKey(ctx, req.OrderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", req.OrderID).Msg("Failed to load order")
			return err
		}
		if o.InvoiceURL != "" {
			log.Info().Str("order_id", req.OrderID).Msg("Invoice already attached, skipping")
			return nil
		}

		// One render per order at a time across worker instances.
		lock, err := redisClient.AcquireLock(ctx, "invoice:"+req.OrderID, 30*time.Second)
		if err != nil {
			log.Warn().Err(err).Str("order_id", req.OrderID).Msg("Failed to acquire invoice lock")
			return err // Retry later
		}
		defer lock.Release(ctx)

		url, err := renderInvoice(ctx, invoiceServiceURL, &req)
		if err != nil {
			log.Error().Err(err).Str("order_id", req.OrderID).Msg("Invoice collaborator call failed")
			return err
		}

		attached, err := orders.SetInvoiceURL(ctx, req.OrderID, url)
		if err != nil {
			log.Error().Err(err).Str("order_id", req.OrderID).Msg("Failed to attach invoice URL")
			return err
		}
		if !attached {
			log.Info().Str("order_id", req.OrderID).Msg("Invoice attached by a concurrent worker")
			return nil
		}

		log.Info().Str("order_id", req.OrderID).Str("invoice_url", url).Msg("Invoice attached")
		return nil
	}
}

type renderResponse struct {
	URL string `json:"url"`
}

func renderInvoice(ctx context.Context, baseURL string, req *order.InvoiceRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/invoices", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("invoice service returned status %d", resp.StatusCode)
	}

	var rendered renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rendered); err != nil {
		return "", err
	}
	if rendered.URL == "" {
		return "", fmt.Errorf("invoice service returned empty url")
	}
	return rendered.URL, nil
}
