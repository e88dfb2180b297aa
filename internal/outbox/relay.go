package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/soundforge/Tempo/internal/kafka"
)

// Relay drains side_effect_outbox into Kafka. Rows are claimed with
// FOR UPDATE SKIP LOCKED so multiple relay instances never double-publish
// within one poll; delivery is still at-least-once overall, consumers
// dedupe on correlation ID.
type Relay struct {
	db        *pgxpool.Pool
	producer  *kafka.Producer
	logger    *zerolog.Logger
	batchSize int
	interval  time.Duration
}

type pendingEffect struct {
	ID            int64
	EventType     string
	Payload       []byte
	PartitionKey  string
	CorrelationID string
}

func NewRelay(db *pgxpool.Pool, producer *kafka.Producer, logger *zerolog.Logger) *Relay {
	return &Relay{
		db:        db,
		producer:  producer,
		logger:    logger,
		batchSize: 100,
		interval:  time.Second,
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info().Msg("Starting side-effect relay")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Stopping side-effect relay")
			return nil
		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Failed to process outbox batch")
			}
		}
	}
}

func (r *Relay) processBatch(ctx context.Context) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, event_type, payload, partition_key, COALESCE(correlation_id, '')
		FROM side_effect_outbox
		WHERE status = 'pending'
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return err
	}

	var effects []pendingEffect
	for rows.Next() {
		var e pendingEffect
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.PartitionKey, &e.CorrelationID); err != nil {
			rows.Close()
			return err
		}
		effects = append(effects, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(effects) == 0 {
		return nil
	}
	r.logger.Debug().Int("count", len(effects)).Msg("Fetched pending side effects")

	var publishedIDs []int64
	for _, e := range effects {
		topic := topicForEvent(e.EventType)
		err := r.producer.PublishWithHeaders(ctx, topic, []byte(e.PartitionKey), e.Payload, map[string]string{
			"correlation_id": e.CorrelationID,
		})
		if err != nil {
			// Leave the row pending; the next poll retries it.
			r.logger.Error().Err(err).
				Int64("effect_id", e.ID).
				Str("event_type", e.EventType).
				Msg("Failed to publish side effect")
			continue
		}
		publishedIDs = append(publishedIDs, e.ID)
	}

	if len(publishedIDs) == 0 {
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE side_effect_outbox
		SET status = 'processed', updated_at = NOW()
		WHERE id = ANY($1)
	`, publishedIDs)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func topicForEvent(eventType string) string {
	switch eventType {
	case kafka.EventInvoiceRequested:
		return kafka.TopicInvoiceRequest
	case kafka.EventNotificationRequired:
		return kafka.TopicNotificationDispatch
	default:
		return kafka.TopicDLQ
	}
}
