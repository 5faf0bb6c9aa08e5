package memory

import (
	"context"
	"sync"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

// CartRepository keeps working carts in process memory.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

var _ store.CartRepository = (*CartRepository)(nil)

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

func (r *CartRepository) Load(_ context.Context, terminalID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[terminalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cart = cloneCart(cart)
	return &cart, nil
}

func (r *CartRepository) Save(_ context.Context, cart domain.Cart) error {
	if cart.TerminalID == "" {
		return store.ErrInvalidTransaction
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[cart.TerminalID] = cloneCart(cart)
	return nil
}

func (r *CartRepository) Delete(_ context.Context, terminalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, terminalID)
	return nil
}
