package memory

import (
	"context"
	"slices"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) CreateFrozenCart(_ context.Context, frozen domain.FrozenCart) (*domain.FrozenCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if frozen.TerminalID == "" || frozen.Cart.Empty() {
		return nil, store.ErrInvalidTransaction
	}
	if frozen.ID == "" {
		frozen.ID = xid.New("frz")
	}
	if frozen.FrozenAt.IsZero() {
		frozen.FrozenAt = time.Now().UTC()
	}
	s.frozen[frozen.ID] = cloneFrozen(frozen)
	saved := cloneFrozen(frozen)
	return &saved, nil
}

func (s *Store) CountFrozenCarts(_ context.Context, terminalID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, frozen := range s.frozen {
		if frozen.TerminalID == terminalID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListFrozenCarts(_ context.Context, terminalID string) ([]domain.FrozenCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.FrozenCart, 0, 4)
	for _, frozen := range s.frozen {
		if frozen.TerminalID == terminalID {
			result = append(result, cloneFrozen(frozen))
		}
	}
	slices.SortFunc(result, func(a, b domain.FrozenCart) int {
		return b.FrozenAt.Compare(a.FrozenAt)
	})
	return result, nil
}

func (s *Store) PopFrozenCart(_ context.Context, terminalID string, frozenID string) (*domain.FrozenCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frozen, ok := s.frozen[frozenID]
	if !ok || frozen.TerminalID != terminalID {
		return nil, store.ErrNotFound
	}
	delete(s.frozen, frozenID)
	result := cloneFrozen(frozen)
	return &result, nil
}

func (s *Store) DeleteFrozenCart(_ context.Context, terminalID string, frozenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frozen, ok := s.frozen[frozenID]
	if !ok || frozen.TerminalID != terminalID {
		return store.ErrNotFound
	}
	delete(s.frozen, frozenID)
	return nil
}

func cloneFrozen(src domain.FrozenCart) domain.FrozenCart {
	dst := src
	dst.Cart = cloneCart(src.Cart)
	return dst
}

func cloneCart(src domain.Cart) domain.Cart {
	dst := src
	dst.Lines = make([]domain.CartLine, len(src.Lines))
	for i, line := range src.Lines {
		line.UnitDiscountPercent = slices.Clone(line.UnitDiscountPercent)
		dst.Lines[i] = line
	}
	return dst
}
