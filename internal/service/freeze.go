package service

import (
	"context"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
)

// Freeze parks the terminal's working cart under label and leaves the
// terminal with an empty cart.
func (s *Service) Freeze(ctx context.Context, terminalID string, label string) (*domain.FrozenCart, error) {
	terminalID, err := normalizeTerminal(terminalID)
	if err != nil {
		return nil, err
	}
	unlock := s.terminals.Lock(terminalID)
	defer unlock()

	cart, err := s.loadCart(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = fmt.Sprintf("frozen %s", s.now().Format("15:04"))
	}
	frozen, err := s.freezer.Freeze(ctx, *cart, label, actorName(ctx))
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, terminalID, "cart_freeze", "frozen_cart", frozen.ID, fmt.Sprintf("lines=%d", len(cart.Lines)))
	return frozen, nil
}

func (s *Service) ListFrozen(ctx context.Context, terminalID string) (domain.FrozenListResponse, error) {
	terminalID, err := normalizeTerminal(terminalID)
	if err != nil {
		return domain.FrozenListResponse{}, err
	}
	items, err := s.freezer.List(ctx, terminalID)
	if err != nil {
		return domain.FrozenListResponse{}, err
	}
	if items == nil {
		items = []domain.FrozenCart{}
	}
	return domain.FrozenListResponse{Items: items, Limit: s.settings.MaxFrozen}, nil
}

// Unfreeze restores a frozen cart. The working cart must be empty.
func (s *Service) Unfreeze(ctx context.Context, terminalID string, frozenID string) (domain.CartResponse, error) {
	terminalID, err := normalizeTerminal(terminalID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	unlock := s.terminals.Lock(terminalID)
	defer unlock()

	cart, err := s.freezer.Unfreeze(ctx, terminalID, frozenID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	s.logAudit(ctx, terminalID, "cart_unfreeze", "frozen_cart", frozenID, fmt.Sprintf("lines=%d", len(cart.Lines)))
	return cartResponse(*cart), nil
}

func (s *Service) DiscardFrozen(ctx context.Context, terminalID string, frozenID string) error {
	terminalID, err := normalizeTerminal(terminalID)
	if err != nil {
		return err
	}
	if err := s.freezer.Discard(ctx, terminalID, frozenID); err != nil {
		return err
	}
	s.logAudit(ctx, terminalID, "cart_discard_frozen", "frozen_cart", frozenID, "")
	return nil
}
