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

const opReturn = "process_return"

// ProcessReturn takes units of a settled order back. The refund goes out as
// a voucher or, for cash and card, as a negative payment. The order becomes
// Returned when every unit came back and PartiallyReturned otherwise.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (resp domain.ReturnResponse, err error) {
	defer func() {
		if err != nil {
			s.reportFailure(ctx, opReturn, req.OrderID, err)
		}
	}()

	if req.RefundMethod == "" {
		req.RefundMethod = domain.RefundVoucher
	}
	if !req.RefundMethod.Valid() {
		return domain.ReturnResponse{}, fmt.Errorf("%w: unknown refund method %q", store.ErrInvalidTransaction, req.RefundMethod)
	}

	unlock, ok := s.orders.TryLock(req.OrderID)
	if !ok {
		return domain.ReturnResponse{}, fmt.Errorf("%w: order %s is being processed", store.ErrConflict, req.OrderID)
	}
	defer unlock()

	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	items, err := s.repo.GetOrderItems(ctx, order.ID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	returned, err := returnQuantities(items, req.Items)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	ordered, units := 0, 0
	newTotal, refund := decimal.Zero, decimal.Zero
	for _, item := range items {
		back := returned[item.ID]
		ordered += item.Quantity
		units += back
		newTotal = newTotal.Add(item.FinalCost.Mul(decimal.NewFromInt(int64(item.Quantity - back))))
		refund = refund.Add(item.FinalCost.Mul(decimal.NewFromInt(int64(back))))
	}
	newTotal, refund = money.Round2(newTotal), money.Round2(refund)
	status, partial := lifecycle.ReturnStatus(ordered, units)
	if err := lifecycle.Transition(order.StatusID, status); err != nil {
		return domain.ReturnResponse{}, err
	}
	warehouseID := strings.TrimSpace(req.WarehouseID)
	if warehouseID == "" {
		warehouseID = order.WarehouseID
	}

	steps := []saga.Step{
		{
			Name: "update_order_total",
			Forward: func(ctx context.Context) error {
				return s.repo.UpdateOrderTotal(ctx, order.ID, newTotal)
			},
		},
		{
			Name: "update_order_status",
			Forward: func(ctx context.Context) error {
				return s.repo.UpdateOrderStatus(ctx, order.ID, status)
			},
		},
	}

	var voucher *domain.Voucher
	var payment *domain.OrderPayment
	if req.RefundMethod == domain.RefundVoucher {
		steps = append(steps, saga.Step{
			Name: "issue_voucher",
			Forward: func(ctx context.Context) error {
				v, err := s.repo.CreateVoucher(ctx, s.newVoucher(order.ID, refund))
				voucher = v
				return err
			},
		})
	} else {
		amount := refund.Neg()
		steps = append(steps, saga.Step{
			Name: "record_refund",
			Forward: func(ctx context.Context) error {
				p, err := s.repo.CreatePayment(ctx, domain.OrderPayment{
					ID:              xid.New("pay"),
					OrderID:         order.ID,
					PaymentMethodID: string(req.RefundMethod),
					Amount:          amount,
					Tax:             money.BackOutVAT(amount),
					StatusID:        domain.PaymentStatusCompleted,
					PaidAt:          s.now().UTC(),
				})
				payment = p
				return err
			},
		})
	}

	restored := make([]domain.StockAdjustment, 0, len(req.Items))
	for _, item := range items {
		if returned[item.ID] == 0 {
			continue
		}
		adj := domain.StockAdjustment{
			ProductID:     item.ProductID,
			WarehouseID:   warehouseID,
			QuantityDelta: returned[item.ID],
			Direction:     domain.StockAdd,
		}
		restored = append(restored, adj)
		steps = append(steps, stockStep(s.stock, adj))
	}
	for _, item := range items {
		if returned[item.ID] == 0 {
			continue
		}
		remaining := item.Quantity - returned[item.ID]
		steps = append(steps, saga.Step{
			Name: "decrement_item:" + item.ID,
			Forward: func(ctx context.Context) error {
				return s.repo.UpdateOrderItemQuantity(ctx, item.ID, remaining)
			},
		})
	}

	if _, err := s.runner.Run(ctx, opReturn, steps); err != nil {
		return domain.ReturnResponse{}, err
	}

	detail := fmt.Sprintf("units=%d/%d,refund=%s,method=%s", units, ordered, refund.StringFixed(2), req.RefundMethod)
	s.logAudit(ctx, order.TerminalID, "order_return", "order", order.ID, detail)
	s.notifyInfo(ctx, opReturn, order.ID, fmt.Sprintf("order %s %s", order.Code, status))

	return domain.ReturnResponse{
		OrderID:       order.ID,
		Status:        status.String(),
		Partial:       partial,
		NewTotal:      newTotal,
		RefundAmount:  refund,
		Voucher:       voucher,
		Refund:        payment,
		StockRestored: restored,
	}, nil
}

// returnQuantities validates the requested lines against the order's items
// and returns units to take back per item id.
func returnQuantities(items []domain.OrderItem, lines []domain.ReturnLine) (map[string]int, error) {
	available := make(map[string]int, len(items))
	for _, item := range items {
		available[item.ID] = item.Quantity
	}
	out := make(map[string]int, len(lines))
	total := 0
	for _, line := range lines {
		qty, ok := available[line.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %s", store.ErrNotFound, line.ItemID)
		}
		if _, dup := out[line.ItemID]; dup {
			return nil, fmt.Errorf("%w: item %s listed twice", store.ErrInvalidTransaction, line.ItemID)
		}
		if line.Quantity < 0 || line.Quantity > qty {
			return nil, fmt.Errorf("%w: return quantity for %s must be between 0 and %d", store.ErrInvalidTransaction, line.ItemID, qty)
		}
		out[line.ItemID] = line.Quantity
		total += line.Quantity
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: nothing to return", store.ErrInvalidTransaction)
	}
	return out, nil
}
