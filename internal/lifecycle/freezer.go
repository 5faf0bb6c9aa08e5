package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// DefaultMaxFrozen is how many frozen orders a terminal may keep.
const DefaultMaxFrozen = 3

// Freezer parks working carts and restores them verbatim.
type Freezer struct {
	frozen store.FrozenCartStore
	carts  store.CartRepository
	limit  int
	now    func() time.Time
}

func NewFreezer(frozen store.FrozenCartStore, carts store.CartRepository, limit int) *Freezer {
	if limit < 1 {
		limit = DefaultMaxFrozen
	}
	return &Freezer{frozen: frozen, carts: carts, limit: limit, now: time.Now}
}

// Freeze snapshots the terminal's cart and clears it. It fails with
// store.ErrFreezeLimit, changing nothing, when the terminal is at its limit.
func (f *Freezer) Freeze(ctx context.Context, cart domain.Cart, label string, actor string) (*domain.FrozenCart, error) {
	if cart.Empty() {
		return nil, fmt.Errorf("%w: cart is empty", store.ErrInvalidTransaction)
	}
	count, err := f.frozen.CountFrozenCarts(ctx, cart.TerminalID)
	if err != nil {
		return nil, err
	}
	if count >= f.limit {
		return nil, fmt.Errorf("%w: %d of %d in use", store.ErrFreezeLimit, count, f.limit)
	}

	saved, err := f.frozen.CreateFrozenCart(ctx, domain.FrozenCart{
		ID:         xid.New("frz"),
		TerminalID: cart.TerminalID,
		Label:      label,
		FrozenBy:   actor,
		Cart:       cart,
		FrozenAt:   f.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := f.carts.Delete(ctx, cart.TerminalID); err != nil {
		// the snapshot is already stored; put it back so the cart is not duplicated
		if _, popErr := f.frozen.PopFrozenCart(ctx, cart.TerminalID, saved.ID); popErr != nil {
			return nil, fmt.Errorf("clear cart: %w (snapshot %s kept: %v)", err, saved.ID, popErr)
		}
		return nil, err
	}
	return saved, nil
}

// Unfreeze restores a frozen cart as the terminal's working cart.
func (f *Freezer) Unfreeze(ctx context.Context, terminalID string, frozenID string) (*domain.Cart, error) {
	current, err := f.carts.Load(ctx, terminalID)
	switch {
	case err == nil && !current.Empty():
		return nil, fmt.Errorf("%w: working cart is not empty", store.ErrConflict)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	frozen, err := f.frozen.PopFrozenCart(ctx, terminalID, frozenID)
	if err != nil {
		return nil, err
	}
	cart := frozen.Cart
	cart.TerminalID = terminalID
	cart.UpdatedAt = f.now().UTC()
	if err := f.carts.Save(ctx, cart); err != nil {
		if _, restoreErr := f.frozen.CreateFrozenCart(ctx, *frozen); restoreErr != nil {
			return nil, fmt.Errorf("restore cart: %w (frozen cart %s lost: %v)", err, frozenID, restoreErr)
		}
		return nil, err
	}
	return &cart, nil
}

func (f *Freezer) List(ctx context.Context, terminalID string) ([]domain.FrozenCart, error) {
	return f.frozen.ListFrozenCarts(ctx, terminalID)
}

func (f *Freezer) Discard(ctx context.Context, terminalID string, frozenID string) error {
	return f.frozen.DeleteFrozenCart(ctx, terminalID, frozenID)
}
