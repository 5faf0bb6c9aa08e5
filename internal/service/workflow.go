package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/saga"
	"retailpos/backend/internal/store"
)

// stockCompensator is implemented by ledgers that route rollback deltas
// around their own fail-fast checks.
type stockCompensator interface {
	CompensateStock(ctx context.Context, adj domain.StockAdjustment) error
}

// stockStep applies one signed stock delta and undoes it with the inverse
// delta.
func stockStep(ledger store.StockLedger, adj domain.StockAdjustment) saga.Step {
	return saga.Step{
		Name: fmt.Sprintf("stock_%s:%s", adj.Direction, adj.ProductID),
		Forward: func(ctx context.Context) error {
			return ledger.AdjustStock(ctx, adj)
		},
		Compensate: func(ctx context.Context) error {
			if c, ok := ledger.(stockCompensator); ok {
				return c.CompensateStock(ctx, adj.Inverse())
			}
			return ledger.AdjustStock(ctx, adj.Inverse())
		},
	}
}

// reportFailure sends the single operator notification for a failed
// operation.
func (s *Service) reportFailure(ctx context.Context, operation string, orderID string, err error) {
	n := domain.Notification{
		Level:     domain.NotifyError,
		Operation: operation,
		OrderID:   orderID,
		Message:   fmt.Sprintf("could not complete %s: %v", operation, err),
		CreatedAt: s.now().UTC(),
	}
	var sagaErr *saga.Error
	if errors.As(err, &sagaErr) {
		n.Message = "could not complete: " + saga.Describe(sagaErr)
		if sagaErr.NeedsReconciliation() {
			n.Level = domain.NotifyReconcile
			n.Message = fmt.Sprintf("completed with side effects requiring manual reconciliation: %s: %v",
				saga.Describe(sagaErr), sagaErr.CompensationError())
		}
	}
	s.deliver(ctx, n)
}

func (s *Service) notifyInfo(ctx context.Context, operation string, orderID string, message string) {
	s.deliver(ctx, domain.Notification{
		Level:     domain.NotifyInfo,
		Operation: operation,
		OrderID:   orderID,
		Message:   message,
		CreatedAt: s.now().UTC(),
	})
}

func (s *Service) deliver(ctx context.Context, n domain.Notification) {
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Warn("deliver notification failed",
			zap.String("operation", n.Operation),
			zap.String("order_id", n.OrderID),
			zap.Error(err))
	}
}
