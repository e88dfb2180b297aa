package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pgx-backed Store. The correlation key the checkout flow
// embeds at payment-creation time is the order ID itself.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

const orderColumns = `id, status, items, total, currency, COALESCE(provider, ''), COALESCE(provider_transaction_id, ''), COALESCE(invoice_url, ''), created_at, updated_at`

func (r *Repository) GetByCorrelationKey(ctx context.Context, key string) (*Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var o Order
	err := r.db.QueryRow(ctx, sql, key).Scan(
		&o.ID,
		&o.Status,
		&o.Items,
		&o.Total,
		&o.Currency,
		&o.Provider,
		&o.ProviderTransactionID,
		&o.InvoiceURL,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) ListReservations(ctx context.Context, orderID string) ([]Reservation, error) {
	return listReservations(ctx, r.db, orderID)
}

func (r *Repository) SetInvoiceURL(ctx context.Context, orderID, url string) (bool, error) {
	sql := `UPDATE orders SET invoice_url = $1, updated_at = NOW() WHERE id = $2 AND invoice_url IS NULL`

	tag, err := r.db.Exec(ctx, sql, url, orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// txRepository scopes mutations to one open transaction.
type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, orderID string, from, to Status, params *TransitionParams) (bool, error) {
	sql := `UPDATE orders
		SET status = $1, provider = $2, provider_transaction_id = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`

	tag, err := r.tx.Exec(ctx, sql, to, params.Provider, params.ProviderTransactionID, orderID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) ListReservations(ctx context.Context, orderID string) ([]Reservation, error) {
	return listReservations(ctx, r.tx, orderID)
}

func (r *txRepository) ConfirmReservation(ctx context.Context, reservationID string) (bool, error) {
	sql := `UPDATE reservations SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	tag, err := r.tx.Exec(ctx, sql, ReservationConfirmed, reservationID, ReservationPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	sql := `INSERT INTO order_audit_log
		(order_id, provider, event_id, event_kind, from_status, to_status, provider_transaction_id, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.tx.Exec(ctx, sql,
		entry.OrderID,
		entry.Provider,
		entry.EventID,
		entry.EventKind,
		entry.FromStatus,
		entry.ToStatus,
		entry.ProviderTransactionID,
		entry.RequestID,
	)
	return err
}

func (r *txRepository) EnqueueSideEffect(ctx context.Context, effect *SideEffect) error {
	sql := `INSERT INTO side_effect_outbox (event_type, payload, partition_key, correlation_id, status)
		VALUES ($1, $2, $3, $4, 'pending')`

	_, err := r.tx.Exec(ctx, sql,
		effect.EventType,
		effect.Payload,
		effect.PartitionKey,
		effect.CorrelationID,
	)
	return err
}

// querier is the subset of pgx shared by pool and transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listReservations(ctx context.Context, q querier, orderID string) ([]Reservation, error) {
	sql := `SELECT id, order_id, service_type, status, created_at, updated_at
		FROM reservations WHERE order_id = $1 ORDER BY id ASC`

	rows, err := q.Query(ctx, sql, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ServiceType, &res.Status, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}
