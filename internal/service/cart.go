package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/backend/internal/allocation"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/lifecycle"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/promotion"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) GetCart(ctx context.Context, terminalID string) (domain.CartResponse, error) {
	terminalID, err := normalizeTerminal(terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	cart, err := s.loadCart(ctx, terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(*cart), nil
}

// AddProduct scans a product into the cart. Stock is checked against the
// units already in the cart before anything changes.
func (s *Service) AddProduct(ctx context.Context, terminalID string, req domain.AddLineRequest) (domain.CartResponse, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.ProductID == "" || req.Quantity < 1 {
		return domain.CartResponse{}, fmt.Errorf("%w: product and positive quantity required", store.ErrInvalidTransaction)
	}
	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.CartResponse{}, err
	}

	return s.editCart(ctx, terminalID, true, func(cart *domain.Cart) error {
		if err := s.checkStock(ctx, *cart, product.ID, req.Quantity); err != nil {
			return err
		}
		for i := range cart.Lines {
			line := &cart.Lines[i]
			if line.ProductID == product.ID && line.Size == product.Size && !line.IsFromReservation {
				return allocation.Resize(line, line.Quantity+req.Quantity)
			}
		}
		line := allocation.NewLine(xid.New("ln"), *product)
		if req.Quantity > 1 {
			if err := allocation.Resize(&line, req.Quantity); err != nil {
				return err
			}
		}
		cart.Lines = append(cart.Lines, line)
		return nil
	})
}

// SetQuantity resizes a line. Zero removes it.
func (s *Service) SetQuantity(ctx context.Context, terminalID string, lineID string, quantity int) (domain.CartResponse, error) {
	if quantity < 0 {
		return domain.CartResponse{}, fmt.Errorf("%w: quantity cannot be negative", store.ErrInvalidTransaction)
	}
	return s.editCart(ctx, terminalID, true, func(cart *domain.Cart) error {
		line, idx, err := findLine(cart, lineID)
		if err != nil {
			return err
		}
		if line.IsFromReservation {
			return fmt.Errorf("%w: line %s", store.ErrReadOnlyLine, lineID)
		}
		if quantity == 0 {
			cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
			return nil
		}
		if quantity > line.Quantity {
			if err := s.checkStock(ctx, *cart, line.ProductID, quantity-line.Quantity); err != nil {
				return err
			}
		}
		return allocation.Resize(line, quantity)
	})
}

func (s *Service) RemoveLine(ctx context.Context, terminalID string, lineID string) (domain.CartResponse, error) {
	return s.SetQuantity(ctx, terminalID, lineID, 0)
}

// ResetCart discards the working cart. A reopened reservation is untouched.
func (s *Service) ResetCart(ctx context.Context, terminalID string) error {
	terminalID, err := normalizeTerminal(terminalID)
	if err != nil {
		return err
	}
	unlock := s.terminals.Lock(terminalID)
	defer unlock()
	return s.carts.Delete(ctx, terminalID)
}

func (s *Service) ApplyLineDiscount(ctx context.Context, terminalID string, lineID string, percent decimal.Decimal) (domain.CartResponse, error) {
	return s.editCart(ctx, terminalID, false, func(cart *domain.Cart) error {
		line, _, err := findLine(cart, lineID)
		if err != nil {
			return err
		}
		return allocation.ApplyRowDiscount(line, percent)
	})
}

func (s *Service) ApplyUnitDiscount(ctx context.Context, terminalID string, lineID string, unit int, percent decimal.Decimal) (domain.CartResponse, error) {
	return s.editCart(ctx, terminalID, false, func(cart *domain.Cart) error {
		line, _, err := findLine(cart, lineID)
		if err != nil {
			return err
		}
		return allocation.ApplyUnitDiscount(line, unit, percent)
	})
}

func (s *Service) ApplyLineTotal(ctx context.Context, terminalID string, lineID string, total decimal.Decimal) (domain.CartResponse, error) {
	return s.editCart(ctx, terminalID, false, func(cart *domain.Cart) error {
		line, _, err := findLine(cart, lineID)
		if err != nil {
			return err
		}
		return allocation.ApplyRowTotal(line, total)
	})
}

func (s *Service) ApplyOrderTotal(ctx context.Context, terminalID string, total decimal.Decimal) (domain.CartResponse, error) {
	return s.editCart(ctx, terminalID, false, func(cart *domain.Cart) error {
		if cart.Empty() {
			return fmt.Errorf("%w: cart is empty", store.ErrInvalidTransaction)
		}
		return allocation.ApplyOrderTotal(cart, total)
	})
}

// ApplyPromotion evaluates a stored promotion against the cart. The
// promotion stays attached and is re-evaluated after quantity changes.
func (s *Service) ApplyPromotion(ctx context.Context, terminalID string, promotionID string) (domain.PromotionResult, error) {
	rule, err := s.rule(ctx, promotionID)
	if err != nil {
		return domain.PromotionResult{}, err
	}
	var applied bool
	resp, err := s.editCart(ctx, terminalID, false, func(cart *domain.Cart) error {
		if cart.Empty() {
			return fmt.Errorf("%w: cart is empty", store.ErrInvalidTransaction)
		}
		cart.PromotionID = promotionID
		var evalErr error
		applied, evalErr = promotion.Evaluate(cart, rule)
		return evalErr
	})
	if err != nil {
		return domain.PromotionResult{}, err
	}
	return domain.PromotionResult{CartResponse: resp, PromotionID: promotionID, Applied: applied}, nil
}

// editCart loads the terminal's cart, applies fn and saves the result. When
// fn fails nothing is saved. Structural edits re-run the attached promotion.
func (s *Service) editCart(ctx context.Context, terminalID string, structural bool, fn func(cart *domain.Cart) error) (domain.CartResponse, error) {
	terminalID, err := normalizeTerminal(terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	unlock := s.terminals.Lock(terminalID)
	defer unlock()

	cart, err := s.loadCart(ctx, terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if err := fn(cart); err != nil {
		return domain.CartResponse{}, err
	}
	if structural && cart.PromotionID != "" && !cart.Empty() {
		s.reapplyPromotion(ctx, cart)
	}

	if cart.Empty() && cart.CurrentOrderID == "" {
		if err := s.carts.Delete(ctx, terminalID); err != nil {
			return domain.CartResponse{}, err
		}
		return cartResponse(*s.emptyCart(terminalID)), nil
	}
	cart.StatusID = lifecycle.CartStatus(*cart)
	cart.UpdatedAt = s.now().UTC()
	if err := s.carts.Save(ctx, *cart); err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(*cart), nil
}

func (s *Service) reapplyPromotion(ctx context.Context, cart *domain.Cart) {
	rule, err := s.rule(ctx, cart.PromotionID)
	if err != nil {
		s.logger.Warn("drop promotion from cart",
			zap.String("terminal_id", cart.TerminalID),
			zap.String("promotion_id", cart.PromotionID),
			zap.Error(err))
		cart.PromotionID = ""
		return
	}
	if _, err := promotion.Evaluate(cart, rule); err != nil {
		s.logger.Warn("re-evaluate promotion", zap.String("promotion_id", cart.PromotionID), zap.Error(err))
	}
}

func (s *Service) loadCart(ctx context.Context, terminalID string) (*domain.Cart, error) {
	cart, err := s.carts.Load(ctx, terminalID)
	if errors.Is(err, store.ErrNotFound) {
		return s.emptyCart(terminalID), nil
	}
	if err != nil {
		return nil, err
	}
	if cart.WarehouseID == "" {
		cart.WarehouseID = s.settings.DefaultWarehouseID
	}
	return cart, nil
}

func (s *Service) emptyCart(terminalID string) *domain.Cart {
	return &domain.Cart{
		TerminalID:  terminalID,
		WarehouseID: s.settings.DefaultWarehouseID,
		Lines:       []domain.CartLine{},
	}
}

// checkStock fails with store.ErrInsufficientStock when adding qty units of
// productID would exceed the warehouse stock. Reservation lines already hold
// their stock.
func (s *Service) checkStock(ctx context.Context, cart domain.Cart, productID string, qty int) error {
	inCart := 0
	for _, line := range cart.Lines {
		if line.ProductID == productID && !line.IsFromReservation {
			inCart += line.Quantity
		}
	}
	available, err := s.stock.GetStock(ctx, productID, cart.WarehouseID)
	if err != nil {
		return err
	}
	if inCart+qty > available {
		return fmt.Errorf("%w: %s has %d available, cart needs %d", store.ErrInsufficientStock, productID, available, inCart+qty)
	}
	return nil
}

func findLine(cart *domain.Cart, lineID string) (*domain.CartLine, int, error) {
	line, idx := cart.Line(lineID)
	if line == nil {
		return nil, -1, fmt.Errorf("%w: line %s", store.ErrNotFound, lineID)
	}
	return line, idx, nil
}

func normalizeTerminal(terminalID string) (string, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return "", fmt.Errorf("%w: terminal id required", store.ErrInvalidTransaction)
	}
	return terminalID, nil
}

func summarize(cart domain.Cart) domain.CartSummary {
	var sum domain.CartSummary
	subtotal := decimal.Zero
	total := decimal.Zero
	for _, line := range cart.Lines {
		sum.Units += line.Quantity
		subtotal = subtotal.Add(allocation.BasePrice(line))
		total = total.Add(line.RowTotal)
	}
	sum.Subtotal = money.Round2(subtotal)
	sum.Total = money.Round2(total)
	sum.Discount = sum.Subtotal.Sub(sum.Total)
	return sum
}

func cartResponse(cart domain.Cart) domain.CartResponse {
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}
	return domain.CartResponse{Cart: cart, Summary: summarize(cart)}
}
