package order

import (
	"context"
	"errors"
)

// ErrNotFound means no order matches the correlation key.
var ErrNotFound = errors.New("order not found")

// TxStore is the transactional slice of the store. Every mutation is
// conditional on the row's current state so concurrent writers converge
// instead of clobbering each other.
type TxStore interface {
	// UpdateOrderStatus moves the order from exactly `from` to `to` and
	// stamps provider attribution. Returns false when the predicate missed,
	// i.e. another writer already moved the order.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to Status, params *TransitionParams) (bool, error)
	ListReservations(ctx context.Context, orderID string) ([]Reservation, error)
	// ConfirmReservation moves a reservation pending -> confirmed. Returns
	// false when the reservation was not pending anymore.
	ConfirmReservation(ctx context.Context, reservationID string) (bool, error)
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	EnqueueSideEffect(ctx context.Context, effect *SideEffect) error
}

// TransitionParams carries the attribution written alongside a status change.
type TransitionParams struct {
	Provider              string
	ProviderTransactionID string
}

// Store is what the reconciliation engine needs from persistence.
type Store interface {
	// GetByCorrelationKey resolves the identifier the checkout flow attached
	// at payment-creation time. Returns ErrNotFound when absent.
	GetByCorrelationKey(ctx context.Context, key string) (*Order, error)
	ListReservations(ctx context.Context, orderID string) ([]Reservation, error)
	// WithinTx runs fn inside one database transaction; fn's mutations commit
	// or roll back together.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
	// SetInvoiceURL attaches an invoice only when none is present yet, which
	// makes invoice generation safely re-triggerable.
	SetInvoiceURL(ctx context.Context, orderID, url string) (bool, error)
}
