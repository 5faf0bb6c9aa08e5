package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/lifecycle"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/saga"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

const opCancel = "cancel_reservation"

// CancelReservation cancels a Draft or PartiallyPaid order, puts its units
// back on the shelf and, for voucher refunds, issues store credit for the
// deposit. Only the stock steps are rolled back on failure.
func (s *Service) CancelReservation(ctx context.Context, req domain.CancelRequest) (resp domain.CancelResponse, err error) {
	defer func() {
		if err != nil {
			s.reportFailure(ctx, opCancel, req.OrderID, err)
		}
	}()

	if req.RefundMethod == "" {
		req.RefundMethod = domain.RefundVoucher
	}
	if !req.RefundMethod.Valid() {
		return domain.CancelResponse{}, fmt.Errorf("%w: unknown refund method %q", store.ErrInvalidTransaction, req.RefundMethod)
	}
	if req.DepositAmount.IsNegative() {
		return domain.CancelResponse{}, fmt.Errorf("%w: deposit cannot be negative", store.ErrInvalidTransaction)
	}

	unlock, ok := s.orders.TryLock(req.OrderID)
	if !ok {
		return domain.CancelResponse{}, fmt.Errorf("%w: order %s is being processed", store.ErrConflict, req.OrderID)
	}
	defer unlock()

	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return domain.CancelResponse{}, err
	}
	if err := lifecycle.CanCancel(order.StatusID); err != nil {
		return domain.CancelResponse{}, err
	}
	items, err := s.repo.GetOrderItems(ctx, order.ID)
	if err != nil {
		return domain.CancelResponse{}, err
	}

	paid := completedPayments(order.Payments)
	deposit := money.Round2(req.DepositAmount)
	if deposit.IsZero() {
		deposit = money.Round2(paid)
	}
	if deposit.Sub(paid).GreaterThan(money.PaymentReconciliationTolerance) {
		return domain.CancelResponse{}, fmt.Errorf("%w: deposit %s exceeds the %s collected",
			store.ErrInvalidTransaction, deposit.StringFixed(2), paid.StringFixed(2))
	}
	warehouseID := strings.TrimSpace(req.WarehouseID)
	if warehouseID == "" {
		warehouseID = order.WarehouseID
	}

	steps := []saga.Step{
		{
			Name: "cancel_order",
			Forward: func(ctx context.Context) error {
				return s.repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled)
			},
		},
		{
			Name: "delete_items",
			Forward: func(ctx context.Context) error {
				return s.repo.SoftDeleteOrderItems(ctx, order.ID)
			},
		},
		{
			Name: "void_payments",
			Forward: func(ctx context.Context) error {
				return s.repo.UpdatePaymentsStatus(ctx, order.ID, domain.PaymentStatusCompleted, domain.PaymentStatusCancelledVoid)
			},
		},
	}

	restored := make([]domain.StockAdjustment, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		adj := domain.StockAdjustment{
			ProductID:     item.ProductID,
			WarehouseID:   warehouseID,
			QuantityDelta: item.Quantity,
			Direction:     domain.StockAdd,
		}
		restored = append(restored, adj)
		steps = append(steps, stockStep(s.stock, adj))
	}

	var voucher *domain.Voucher
	if req.RefundMethod == domain.RefundVoucher && deposit.IsPositive() {
		steps = append(steps, saga.Step{
			Name: "issue_voucher",
			Forward: func(ctx context.Context) error {
				v, err := s.repo.CreateVoucher(ctx, s.newVoucher(order.ID, deposit))
				voucher = v
				return err
			},
		})
	}

	if _, err := s.runner.Run(ctx, opCancel, steps); err != nil {
		return domain.CancelResponse{}, err
	}

	detail := fmt.Sprintf("from=%s,refund=%s,deposit=%s", order.StatusID, req.RefundMethod, deposit.StringFixed(2))
	s.logAudit(ctx, order.TerminalID, "reservation_cancel", "order", order.ID, detail)
	s.notifyInfo(ctx, opCancel, order.ID, fmt.Sprintf("order %s cancelled", order.Code))

	return domain.CancelResponse{
		OrderID:       order.ID,
		Status:        domain.OrderStatusCancelled.String(),
		Voucher:       voucher,
		StockRestored: restored,
	}, nil
}

func (s *Service) newVoucher(originOrderID string, amount decimal.Decimal) domain.Voucher {
	now := s.now().UTC()
	return domain.Voucher{
		ID:            xid.New("vch"),
		TotalAmount:   amount,
		UsedAmount:    decimal.Zero,
		StatusID:      domain.VoucherStatusValid,
		OriginOrderID: originOrderID,
		ValidFrom:     now,
		ValidTo:       now.AddDate(0, s.settings.VoucherValidityMonths, 0),
		CreatedAt:     now,
	}
}
