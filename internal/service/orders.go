package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/lifecycle"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/store"
)

// GetOrder returns an order with how much of it has been paid.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.OrderSummary, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	paid := money.Round2(completedPayments(order.Payments))
	return domain.OrderSummary{
		Order:      *order,
		Status:     order.StatusID.String(),
		Paid:       paid,
		Balance:    money.Round2(decimal.Max(order.FinalTotal.Sub(paid), decimal.Zero)),
		PaidInFull: lifecycle.IsReconciled(paid, order.FinalTotal),
	}, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

func (s *Service) UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.Name == "" {
		return nil, fmt.Errorf("%w: product id and name required", store.ErrInvalidTransaction)
	}
	if !product.ListPrice.IsPositive() {
		return nil, fmt.Errorf("%w: list price must be positive", store.ErrInvalidTransaction)
	}
	if product.SalePrice.IsNegative() || product.SalePrice.GreaterThan(product.ListPrice) {
		return nil, fmt.Errorf("%w: sale price must be between 0 and the list price", store.ErrInvalidTransaction)
	}
	saved, err := s.repo.UpsertProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "", "product_upsert", "product", saved.ID, saved.ListPrice.StringFixed(2))
	return saved, nil
}

// ReceiveStock books incoming units for a product.
func (s *Service) ReceiveStock(ctx context.Context, productID string, req domain.StockReceiveRequest) (int, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return 0, err
	}
	if req.Quantity < 1 {
		return 0, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidTransaction)
	}
	warehouseID := strings.TrimSpace(req.WarehouseID)
	if warehouseID == "" {
		warehouseID = s.settings.DefaultWarehouseID
	}
	if err := s.stock.AdjustStock(ctx, domain.StockAdjustment{
		ProductID:     productID,
		WarehouseID:   warehouseID,
		QuantityDelta: req.Quantity,
		Direction:     domain.StockAdd,
	}); err != nil {
		return 0, err
	}
	s.logAudit(ctx, "", "stock_receive", "product", productID, fmt.Sprintf("warehouse=%s,qty=%d", warehouseID, req.Quantity))
	return s.stock.GetStock(ctx, productID, warehouseID)
}
