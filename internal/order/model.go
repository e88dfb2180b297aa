package order

import (
	"encoding/json"
	"time"

	"github.com/soundforge/Tempo/pkg/types"
)

// Status is the payment lifecycle of an order. failed and refunded are
// terminal; paid can still move to refunded.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// ReservationStatus is the booking lifecycle of a studio-service reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Order is the purchase record created pending by the checkout flow.
// This subsystem only ever mutates status, provider attribution, invoice URL
// and updated_at, always through conditional updates.
type Order struct {
	ID                    string          `json:"id"`
	Status                Status          `json:"status"`
	Items                 json.RawMessage `json:"items"`
	Total                 int64           `json:"total"`
	Currency              string          `json:"currency"`
	Provider              types.Provider  `json:"provider,omitempty"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	InvoiceURL            string          `json:"invoice_url,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Reservation is a service booking (mixing, mastering, recording) linked to
// its paying order. Confirmation rides on the order's payment_succeeded.
type Reservation struct {
	ID          string            `json:"id"`
	OrderID     string            `json:"order_id"`
	ServiceType string            `json:"service_type"`
	Status      ReservationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// AuditEntry is one append-only row recording a state transition attempt.
type AuditEntry struct {
	OrderID               string
	Provider              types.Provider
	EventID               string
	EventKind             string
	FromStatus            Status
	ToStatus              Status
	ProviderTransactionID string
	RequestID             string
}

// SideEffect is an outbox row written inside the transition transaction and
// relayed to Kafka afterwards. At-least-once by construction.
type SideEffect struct {
	EventType     string
	Payload       json.RawMessage
	PartitionKey  string
	CorrelationID string
}

// InvoiceRequest is the side-effect payload asking the invoice collaborator
// to render and attach an invoice.
type InvoiceRequest struct {
	OrderID               string `json:"order_id"`
	Total                 int64  `json:"total"`
	Currency              string `json:"currency"`
	ProviderTransactionID string `json:"provider_transaction_id"`
}

// NotificationRequest is the side-effect payload for customer notification.
type NotificationRequest struct {
	OrderID        string   `json:"order_id"`
	Kind           string   `json:"kind"`
	ReservationIDs []string `json:"reservation_ids,omitempty"`
}
