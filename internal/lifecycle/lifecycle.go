// Package lifecycle owns order statuses and the rules that move an order
// between them.
package lifecycle

import (
	"fmt"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/store"
)

var transitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusNone:          {domain.OrderStatusDraft, domain.OrderStatusPartiallyPaid, domain.OrderStatusSettled},
	domain.OrderStatusDraft:         {domain.OrderStatusDraft, domain.OrderStatusPartiallyPaid, domain.OrderStatusSettled, domain.OrderStatusCancelled},
	domain.OrderStatusPartiallyPaid: {domain.OrderStatusPartiallyPaid, domain.OrderStatusSettled, domain.OrderStatusCancelled},
	domain.OrderStatusSettled:       {domain.OrderStatusReturned, domain.OrderStatusPartiallyReturned},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IllegalTransitionError describes a rejected status change.
type IllegalTransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return store.ErrIllegalTransition
}

// Transition validates a status change.
func Transition(from, to domain.OrderStatus) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}

// IsPartialPayment reports whether the payments selected at checkout leave
// more than the partial payment threshold unpaid.
func IsPartialPayment(selected, remaining decimal.Decimal) bool {
	return selected.LessThan(remaining) && remaining.Sub(selected).GreaterThan(money.PartialPaymentThreshold)
}

// FinalizeStatus is the status an order takes at checkout confirmation.
// collected is cumulative across every session of the order.
func FinalizeStatus(collected, finalTotal decimal.Decimal, isPartial bool) domain.OrderStatus {
	if !isPartial || collected.GreaterThanOrEqual(finalTotal.Sub(money.RoundingTolerance)) {
		return domain.OrderStatusSettled
	}
	if !collected.IsPositive() {
		return domain.OrderStatusDraft
	}
	return domain.OrderStatusPartiallyPaid
}

// IsReconciled reports whether paid matches due within the payment
// reconciliation tolerance.
func IsReconciled(paid, due decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(due) || money.Within(paid, due, money.PaymentReconciliationTolerance)
}

// CanCancel reports whether status is a pre-settlement status.
func CanCancel(status domain.OrderStatus) error {
	return Transition(status, domain.OrderStatusCancelled)
}

// CanReturn reports whether an order in status accepts returns.
func CanReturn(status domain.OrderStatus) error {
	return Transition(status, domain.OrderStatusReturned)
}

// CanReopen reports whether a reservation in status can be loaded back into
// a cart.
func CanReopen(status domain.OrderStatus) error {
	if status != domain.OrderStatusDraft && status != domain.OrderStatusPartiallyPaid {
		return &IllegalTransitionError{From: status, To: domain.OrderStatusPartiallyPaid}
	}
	return nil
}

// ReturnStatus compares returned units with ordered units across the whole
// order. Any shortfall makes the return partial.
func ReturnStatus(ordered, returned int) (domain.OrderStatus, bool) {
	if returned < ordered {
		return domain.OrderStatusPartiallyReturned, true
	}
	return domain.OrderStatusReturned, false
}

// CartStatus is the status a working cart carries once it has lines.
func CartStatus(cart domain.Cart) domain.OrderStatus {
	if cart.Empty() {
		return domain.OrderStatusNone
	}
	if cart.CurrentOrderID != "" && cart.StatusID != domain.OrderStatusNone {
		return cart.StatusID
	}
	return domain.OrderStatusDraft
}
