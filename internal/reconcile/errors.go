package reconcile

import (
	"errors"
	"fmt"

	"github.com/soundforge/Tempo/internal/event"
	"github.com/soundforge/Tempo/internal/order"
)

var (
	// ErrUnknownOrder means the event's correlation key resolves to no order.
	// An integration bug needing operator attention, never retried here.
	ErrUnknownOrder = errors.New("no order matches correlation key")
	// ErrConflict means concurrent writers kept invalidating the optimistic
	// predicate. Transient: safe to retry.
	ErrConflict = errors.New("transition conflicted with a concurrent writer")
)

// IllegalTransitionError is a terminal anomaly: the event asks for a
// transition the order's current status does not permit, or tries to
// re-attribute a payment to a different provider transaction.
type IllegalTransitionError struct {
	OrderID string
	From    order.Status
	Kind    event.Kind
	Reason  string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: order %s in status %q cannot accept %s (%s)", e.OrderID, e.From, e.Kind, e.Reason)
}
