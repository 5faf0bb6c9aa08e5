// Package guard wraps the stock ledger in a circuit breaker so a failing
// ledger fails fast instead of hanging every terminal.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

// ErrLedgerUnavailable is returned while the breaker is open.
var ErrLedgerUnavailable = errors.New("stock ledger unavailable")

type Settings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

type StockLedger struct {
	inner   store.StockLedger
	breaker *gobreaker.CircuitBreaker[int]
}

var _ store.StockLedger = (*StockLedger)(nil)

func NewStockLedger(inner store.StockLedger, settings Settings, logger *zap.Logger) *StockLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:    "stock-ledger",
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// business rejections say nothing about ledger health
			return err == nil || isRejection(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &StockLedger{inner: inner, breaker: cb}
}

func (s *StockLedger) GetStock(ctx context.Context, productID string, warehouseID string) (int, error) {
	qty, err := s.breaker.Execute(func() (int, error) {
		return s.inner.GetStock(ctx, productID, warehouseID)
	})
	return qty, translate(err)
}

func (s *StockLedger) AdjustStock(ctx context.Context, adj domain.StockAdjustment) error {
	_, err := s.breaker.Execute(func() (int, error) {
		return 0, s.inner.AdjustStock(ctx, adj)
	})
	return translate(err)
}

// CompensateStock applies a rollback delta straight to the inner ledger,
// whatever the breaker state.
func (s *StockLedger) CompensateStock(ctx context.Context, adj domain.StockAdjustment) error {
	return s.inner.AdjustStock(ctx, adj)
}

func (s *StockLedger) State() gobreaker.State {
	return s.breaker.State()
}

func isRejection(err error) bool {
	return errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrInvalidTransaction)
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return err
}
