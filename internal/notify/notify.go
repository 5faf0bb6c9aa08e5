// Package notify delivers operator-facing notifications about order
// operations.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"retailpos/backend/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// LogNotifier writes notifications to the service log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	fields := []zap.Field{
		zap.String("level", string(n.Level)),
		zap.String("operation", n.Operation),
		zap.String("order_id", n.OrderID),
	}
	switch n.Level {
	case domain.NotifyReconcile:
		l.logger.Error(n.Message, fields...)
	case domain.NotifyError:
		l.logger.Warn(n.Message, fields...)
	default:
		l.logger.Info(n.Message, fields...)
	}
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
