package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/backend/internal/allocation"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/lifecycle"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/saga"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

const opCheckout = "checkout"

// LoadReservation reopens a Draft or PartiallyPaid order into the terminal's
// empty cart. Its lines are read-only.
func (s *Service) LoadReservation(ctx context.Context, terminalID string, orderID string) (domain.CartResponse, error) {
	terminalID, err := normalizeTerminal(terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	unlock := s.terminals.Lock(terminalID)
	defer unlock()

	current, err := s.loadCart(ctx, terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !current.Empty() {
		return domain.CartResponse{}, fmt.Errorf("%w: working cart is not empty", store.ErrConflict)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if err := lifecycle.CanReopen(order.StatusID); err != nil {
		return domain.CartResponse{}, err
	}

	cart := domain.Cart{
		TerminalID:     terminalID,
		StatusID:       order.StatusID,
		WarehouseID:    order.WarehouseID,
		CurrentOrderID: order.ID,
		Lines:          make([]domain.CartLine, 0, len(order.Items)),
		UpdatedAt:      s.now().UTC(),
	}
	for _, item := range order.Items {
		if item.Quantity < 1 {
			continue
		}
		units := make([]decimal.Decimal, item.Quantity)
		for i := range units {
			units[i] = item.Discount
		}
		line := domain.CartLine{
			ID:                  xid.New("ln"),
			ProductID:           item.ProductID,
			Size:                item.Size,
			Quantity:            item.Quantity,
			UnitListPrice:       item.UnitCost,
			UnitDiscountPercent: units,
			IsFromReservation:   true,
			StatusID:            order.StatusID,
			OrderItemID:         item.ID,
		}
		allocation.Recompute(&line)
		cart.Lines = append(cart.Lines, line)
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return domain.CartResponse{}, err
	}
	s.logAudit(ctx, terminalID, "reservation_load", "order", order.ID, fmt.Sprintf("status=%s", order.StatusID))
	return cartResponse(cart), nil
}

// Checkout turns the terminal's cart into an order, or adds to the reopened
// reservation, and records payments and voucher redemptions. Every external
// call runs as a saga step.
func (s *Service) Checkout(ctx context.Context, terminalID string, req domain.CheckoutRequest) (resp domain.CheckoutResponse, err error) {
	terminalID, err = normalizeTerminal(terminalID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	unlock := s.terminals.Lock(terminalID)
	defer unlock()

	var orderID string
	defer func() {
		if err != nil {
			s.reportFailure(ctx, opCheckout, orderID, err)
		}
	}()

	cart, err := s.loadCart(ctx, terminalID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if cart.Empty() {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidTransaction)
	}
	payments, err := normalizePayments(req.Payments)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	finalTotal := money.Round2(linesTotal(cart.Lines))
	previous := decimal.Zero
	var existing *domain.Order
	if cart.CurrentOrderID != "" {
		orderID = cart.CurrentOrderID
		if existing, err = s.repo.GetOrder(ctx, orderID); err != nil {
			return domain.CheckoutResponse{}, err
		}
		if err := lifecycle.CanReopen(existing.StatusID); err != nil {
			return domain.CheckoutResponse{}, err
		}
		previous = completedPayments(existing.Payments)
	}
	remaining := finalTotal.Sub(previous)

	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	redemptions, err := s.planVouchers(ctx, req.VoucherIDs, remaining.Sub(paid))
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	selected := paid
	for _, r := range redemptions {
		selected = selected.Add(r.amount)
	}

	isPartial := lifecycle.IsPartialPayment(selected, remaining)
	collected := previous.Add(selected)
	status := lifecycle.FinalizeStatus(collected, finalTotal, isPartial)
	from := domain.OrderStatusNone
	if existing != nil {
		from = existing.StatusID
	}
	if err := lifecycle.Transition(from, status); err != nil {
		return domain.CheckoutResponse{}, err
	}

	change := decimal.Zero
	if selected.GreaterThan(remaining) && remaining.IsPositive() {
		change = money.Round2(selected.Sub(remaining))
		if len(payments) == 0 || !payments[len(payments)-1].Amount.GreaterThan(change) {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: vouchers exceed the amount due", store.ErrInvalidTransaction)
		}
		payments[len(payments)-1].Amount = payments[len(payments)-1].Amount.Sub(change)
		collected = collected.Sub(change)
	}

	newLines := make([]domain.CartLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		if !line.IsFromReservation {
			newLines = append(newLines, line)
		}
	}
	items := explodeLines(newLines)
	warehouseID := cart.WarehouseID
	now := s.now().UTC()

	var steps []saga.Step
	if existing == nil {
		orderID = xid.New("ord")
		order := domain.Order{
			ID:          orderID,
			StatusID:    status,
			WarehouseID: warehouseID,
			TerminalID:  terminalID,
			FinalTotal:  finalTotal,
			TotalPrice:  money.Round2(basePrice(cart.Lines)),
			TaxAmount:   money.BackOutVAT(finalTotal),
			Items:       items,
			CreatedBy:   actorName(ctx),
			CreatedAt:   now,
		}
		steps = append(steps, saga.Step{
			Name: "create_order",
			Forward: func(ctx context.Context) error {
				_, err := s.repo.CreateOrder(ctx, order)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return s.repo.UpdateOrderStatus(ctx, orderID, domain.OrderStatusCancelled)
			},
		})
	} else if len(items) > 0 {
		steps = append(steps, saga.Step{
			Name: "append_items",
			Forward: func(ctx context.Context) error {
				return s.repo.AddOrderItems(ctx, orderID, items)
			},
		})
	}

	for _, adj := range stockNeeds(newLines, warehouseID) {
		steps = append(steps, stockStep(s.stock, adj))
	}

	if existing != nil {
		prevTotal := existing.FinalTotal
		steps = append(steps, saga.Step{
			Name: "update_order_total",
			Forward: func(ctx context.Context) error {
				return s.repo.UpdateOrderTotal(ctx, orderID, finalTotal)
			},
			Compensate: func(ctx context.Context) error {
				return s.repo.UpdateOrderTotal(ctx, orderID, prevTotal)
			},
		})
	}

	for i, p := range payments {
		payment := domain.OrderPayment{
			ID:              xid.New("pay"),
			OrderID:         orderID,
			PaymentMethodID: p.MethodID,
			Amount:          p.Amount,
			Tax:             money.BackOutVAT(p.Amount),
			StatusID:        domain.PaymentStatusCompleted,
			PaidAt:          now,
		}
		steps = append(steps, saga.Step{
			Name: fmt.Sprintf("payment:%d", i+1),
			Forward: func(ctx context.Context) error {
				_, err := s.repo.CreatePayment(ctx, payment)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return s.repo.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentStatusCancelledVoid)
			},
		})
	}

	used := make([]domain.Voucher, 0, len(redemptions))
	for _, r := range redemptions {
		steps = append(steps, saga.Step{
			Name: "voucher:" + r.voucher.ID,
			Forward: func(ctx context.Context) error {
				v, err := s.repo.RedeemVoucher(ctx, r.voucher.ID, r.amount, orderID, r.status)
				if err == nil {
					used = append(used, *v)
				}
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := s.repo.ReleaseVoucher(ctx, r.voucher.ID, r.amount)
				return err
			},
		})
	}

	if existing != nil && existing.StatusID != status {
		steps = append(steps, saga.Step{
			Name: "update_order_status",
			Forward: func(ctx context.Context) error {
				return s.repo.UpdateOrderStatus(ctx, orderID, status)
			},
		})
	}

	if _, err := s.runner.Run(ctx, opCheckout, steps); err != nil {
		return domain.CheckoutResponse{}, err
	}

	if err := s.carts.Delete(ctx, terminalID); err != nil {
		s.logger.Warn("clear cart after checkout", zap.String("terminal_id", terminalID), zap.Error(err))
	}
	saved, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.logAudit(ctx, terminalID, "checkout", "order", orderID,
		fmt.Sprintf("status=%s,total=%s,collected=%s", status, finalTotal.StringFixed(2), collected.StringFixed(2)))
	s.notifyInfo(ctx, opCheckout, orderID, fmt.Sprintf("order %s %s", saved.Code, status))

	return domain.CheckoutResponse{
		Order:        *saved,
		Status:       status.String(),
		IsPartial:    isPartial,
		Collected:    money.Round2(collected),
		Balance:      money.Round2(decimal.Max(finalTotal.Sub(collected), decimal.Zero)),
		Change:       change,
		VouchersUsed: used,
	}, nil
}

type redemption struct {
	voucher domain.Voucher
	amount  decimal.Decimal
	status  domain.VoucherStatus
}

// planVouchers decides how much of each voucher goes to the amount still
// due. A voucher that would contribute nothing is rejected.
func (s *Service) planVouchers(ctx context.Context, voucherIDs []string, due decimal.Decimal) ([]redemption, error) {
	seen := make(map[string]struct{}, len(voucherIDs))
	plan := make([]redemption, 0, len(voucherIDs))
	now := s.now().UTC()
	for _, id := range voucherIDs {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup || id == "" {
			return nil, fmt.Errorf("%w: voucher %q listed twice or empty", store.ErrInvalidTransaction, id)
		}
		seen[id] = struct{}{}

		v, err := s.repo.GetVoucher(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := usable(*v, now); err != nil {
			return nil, err
		}
		if !due.IsPositive() {
			return nil, fmt.Errorf("%w: voucher %s is not needed", store.ErrInvalidTransaction, v.Code)
		}
		amount := money.Min(v.Balance(), due)
		status := domain.VoucherStatusPartiallyUsed
		if money.Within(v.Balance().Sub(amount), decimal.Zero, money.PaymentReconciliationTolerance) {
			status = domain.VoucherStatusFullyUsed
		}
		plan = append(plan, redemption{voucher: *v, amount: amount, status: status})
		due = due.Sub(amount)
	}
	return plan, nil
}

func usable(v domain.Voucher, now time.Time) error {
	if v.StatusID != domain.VoucherStatusValid && v.StatusID != domain.VoucherStatusPartiallyUsed {
		return fmt.Errorf("%w: voucher %s is used up", store.ErrConflict, v.Code)
	}
	if now.Before(v.ValidFrom) || now.After(v.ValidTo) {
		return fmt.Errorf("%w: voucher %s is outside its validity window", store.ErrInvalidTransaction, v.Code)
	}
	if !v.Balance().IsPositive() {
		return fmt.Errorf("%w: voucher %s has no balance", store.ErrConflict, v.Code)
	}
	return nil
}

func normalizePayments(in []domain.PaymentInput) ([]domain.PaymentInput, error) {
	out := make([]domain.PaymentInput, 0, len(in))
	for _, p := range in {
		p.MethodID = strings.ToLower(strings.TrimSpace(p.MethodID))
		if p.MethodID == "" || !p.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: payments need a method and a positive amount", store.ErrInvalidTransaction)
		}
		p.Amount = money.Round2(p.Amount)
		out = append(out, p)
	}
	return out, nil
}

// explodeLines turns cart lines into order items, one per distinct unit
// discount within a line.
func explodeLines(lines []domain.CartLine) []domain.OrderItem {
	var items []domain.OrderItem
	for _, line := range lines {
		var order []string
		groups := make(map[string]*domain.OrderItem)
		for _, pct := range line.UnitDiscountPercent {
			key := pct.String()
			if item, ok := groups[key]; ok {
				item.Quantity++
				continue
			}
			groups[key] = &domain.OrderItem{
				ID:        xid.New("item"),
				ProductID: line.ProductID,
				Size:      line.Size,
				Quantity:  1,
				UnitCost:  line.UnitListPrice,
				Discount:  pct,
				FinalCost: money.DiscountedUnitPrice(line.UnitListPrice, pct),
			}
			order = append(order, key)
		}
		for _, key := range order {
			items = append(items, *groups[key])
		}
	}
	return items
}

// stockNeeds sums the units per product that checkout takes from stock.
func stockNeeds(lines []domain.CartLine, warehouseID string) []domain.StockAdjustment {
	totals := make(map[string]int)
	var products []string
	for _, line := range lines {
		if _, ok := totals[line.ProductID]; !ok {
			products = append(products, line.ProductID)
		}
		totals[line.ProductID] += line.Quantity
	}
	slices.Sort(products)
	adjs := make([]domain.StockAdjustment, 0, len(products))
	for _, id := range products {
		adjs = append(adjs, domain.StockAdjustment{
			ProductID:     id,
			WarehouseID:   warehouseID,
			QuantityDelta: totals[id],
			Direction:     domain.StockSubtract,
		})
	}
	return adjs
}

func linesTotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.RowTotal)
	}
	return total
}

func basePrice(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(allocation.BasePrice(line))
	}
	return total
}

func completedPayments(payments []domain.OrderPayment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.StatusID == domain.PaymentStatusCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}
