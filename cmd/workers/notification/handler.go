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
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// notificationHandler forwards payment outcomes to the notification
// collaborator. The collaborator dedupes on the correlation header, so
// at-least-once delivery from the outbox is fine here.
func notificationHandler(notificationServiceURL string, log *zerolog.Logger) kafka.Handler {
	return func(ctx context.Context, msg *kafka.Message) error {
		log.Info().Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("Processing notification request")

		var req order.NotificationRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal notification request")
			return nil // Poison message, retrying cannot help
		}

		payload, err := json.Marshal(req)
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, notificationServiceURL+"/notifications", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if correlationID := msg.Headers["correlation_id"]; correlationID != "" {
			httpReq.Header.Set("X-Correlation-ID", correlationID)
		}

		resp, err := httpClient.Do(httpReq)
		if err != nil {
			log.Error().Err(err).Str("order_id", req.OrderID).Msg("Notification collaborator call failed")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("notification service returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			// The collaborator rejected the payload; redelivery cannot fix it.
			log.Error().Int("status", resp.StatusCode).Str("order_id", req.OrderID).Msg("Notification rejected")
			return nil
		}

		log.Info().Str("order_id", req.OrderID).Str("kind", req.Kind).Msg("Notification dispatched")
		return nil
	}
}
