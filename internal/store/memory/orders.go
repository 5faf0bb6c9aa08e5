package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", store.ErrInvalidTransaction)
	}
	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if _, exists := s.orders[order.ID]; exists {
		return nil, store.ErrConflict
	}
	if order.Code == "" {
		order.Code = fmt.Sprintf("ORD-%06d", len(s.orders)+1)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	s.addItemsLocked(order.ID, order.Items)
	order.Items = nil
	order.Payments = nil
	s.orders[order.ID] = order
	return s.orderLocked(order.ID), nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, store.ErrNotFound
	}
	return s.orderLocked(orderID), nil
}

func (s *Store) GetOrderItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, store.ErrNotFound
	}
	return s.liveItemsLocked(orderID), nil
}

func (s *Store) AddOrderItems(_ context.Context, orderID string, items []domain.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return store.ErrNotFound
	}
	s.addItemsLocked(orderID, items)
	return nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.StatusID = status
	order.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = order
	return nil
}

func (s *Store) UpdateOrderTotal(_ context.Context, orderID string, total decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.FinalTotal = total
	order.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = order
	return nil
}

func (s *Store) SoftDeleteOrderItems(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return store.ErrNotFound
	}
	for _, id := range s.itemOrder[orderID] {
		item := s.items[id]
		item.Deleted = true
		s.items[id] = item
	}
	return nil
}

func (s *Store) UpdateOrderItemQuantity(_ context.Context, itemID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.Deleted {
		return store.ErrNotFound
	}
	if quantity < 0 {
		return fmt.Errorf("%w: negative quantity", store.ErrInvalidTransaction)
	}
	item.Quantity = quantity
	s.items[itemID] = item
	return nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.OrderPayment) (*domain.OrderPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[payment.OrderID]; !ok {
		return nil, store.ErrNotFound
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	s.payments[payment.OrderID] = append(s.payments[payment.OrderID], payment)
	return &payment, nil
}

func (s *Store) ListPayments(_ context.Context, orderID string) ([]domain.OrderPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.payments[orderID]), nil
}

func (s *Store) UpdatePaymentsStatus(_ context.Context, orderID string, from domain.PaymentStatus, to domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return store.ErrNotFound
	}
	payments := s.payments[orderID]
	for i := range payments {
		if payments[i].StatusID == from {
			payments[i].StatusID = to
		}
	}
	return nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, paymentID string, status domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for orderID, payments := range s.payments {
		for i := range payments {
			if payments[i].ID == paymentID {
				s.payments[orderID][i].StatusID = status
				return nil
			}
		}
	}
	return store.ErrNotFound
}

func (s *Store) GetStock(_ context.Context, productID string, warehouseID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return 0, store.ErrNotFound
	}
	return s.stock[warehouseID][productID], nil
}

func (s *Store) AdjustStock(_ context.Context, adj domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if adj.QuantityDelta < 1 {
		return fmt.Errorf("%w: stock delta must be positive", store.ErrInvalidTransaction)
	}
	if _, ok := s.products[adj.ProductID]; !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, adj.ProductID)
	}
	warehouse, ok := s.stock[adj.WarehouseID]
	if !ok {
		warehouse = make(map[string]int)
		s.stock[adj.WarehouseID] = warehouse
	}
	next := warehouse[adj.ProductID] + adj.Signed()
	if next < 0 {
		return fmt.Errorf("%w: product %s", store.ErrInsufficientStock, adj.ProductID)
	}
	warehouse[adj.ProductID] = next
	return nil
}

func (s *Store) CreateVoucher(_ context.Context, voucher domain.Voucher) (*domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !voucher.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: voucher amount must be positive", store.ErrInvalidTransaction)
	}
	if voucher.ID == "" {
		voucher.ID = xid.New("vch")
	}
	if voucher.Code == "" {
		voucher.Code = fmt.Sprintf("VCH-%06d", len(s.vouchers)+1)
	}
	if voucher.StatusID == 0 {
		voucher.StatusID = domain.VoucherStatusValid
	}
	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = time.Now().UTC()
	}
	s.vouchers[voucher.ID] = voucher
	return &voucher, nil
}

func (s *Store) GetVoucher(_ context.Context, voucherID string) (*domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voucher, ok := s.vouchers[voucherID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &voucher, nil
}

func (s *Store) RedeemVoucher(_ context.Context, voucherID string, amount decimal.Decimal, destinationOrderID string, status domain.VoucherStatus) (*domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	voucher, ok := s.vouchers[voucherID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if voucher.StatusID == domain.VoucherStatusFullyUsed {
		return nil, store.ErrConflict
	}
	if !amount.IsPositive() || amount.GreaterThan(voucher.Balance()) {
		return nil, fmt.Errorf("%w: redemption exceeds voucher balance", store.ErrInvalidTransaction)
	}
	voucher.UsedAmount = voucher.UsedAmount.Add(amount)
	voucher.DestinationOrderID = destinationOrderID
	voucher.StatusID = status
	s.vouchers[voucherID] = voucher
	return &voucher, nil
}

func (s *Store) ReleaseVoucher(_ context.Context, voucherID string, amount decimal.Decimal) (*domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	voucher, ok := s.vouchers[voucherID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !amount.IsPositive() || amount.GreaterThan(voucher.UsedAmount) {
		return nil, fmt.Errorf("%w: release exceeds used amount", store.ErrInvalidTransaction)
	}
	voucher.UsedAmount = voucher.UsedAmount.Sub(amount)
	voucher.StatusID = domain.VoucherStatusPartiallyUsed
	if voucher.UsedAmount.IsZero() {
		voucher.StatusID = domain.VoucherStatusValid
		voucher.DestinationOrderID = ""
	}
	s.vouchers[voucherID] = voucher
	return &voucher, nil
}

func (s *Store) addItemsLocked(orderID string, items []domain.OrderItem) {
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.OrderID = orderID
		s.items[item.ID] = item
		s.itemOrder[orderID] = append(s.itemOrder[orderID], item.ID)
	}
}

func (s *Store) liveItemsLocked(orderID string) []domain.OrderItem {
	result := make([]domain.OrderItem, 0, len(s.itemOrder[orderID]))
	for _, id := range s.itemOrder[orderID] {
		if item := s.items[id]; !item.Deleted {
			result = append(result, item)
		}
	}
	return result
}

func (s *Store) orderLocked(orderID string) *domain.Order {
	order := s.orders[orderID]
	order.Items = s.liveItemsLocked(orderID)
	order.Payments = slices.Clone(s.payments[orderID])
	return &order
}
