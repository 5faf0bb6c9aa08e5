package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/allocation"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFinalizeStatus(t *testing.T) {
	tests := []struct {
		name      string
		collected string
		total     string
		partial   bool
		want      domain.OrderStatus
	}{
		{"paid in full", "100", "100", false, domain.OrderStatusSettled},
		{"deposit", "60", "100", true, domain.OrderStatusPartiallyPaid},
		{"within rounding tolerance", "99.99", "100", true, domain.OrderStatusSettled},
		{"at rounding tolerance", "99.95", "100", true, domain.OrderStatusSettled},
		{"just outside rounding tolerance", "99.94", "100", true, domain.OrderStatusPartiallyPaid},
		{"flag not partial", "10", "100", false, domain.OrderStatusSettled},
		{"reservation without deposit", "0", "100", true, domain.OrderStatusDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FinalizeStatus(d(tt.collected), d(tt.total), tt.partial)
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestReconciliationUsesTighterTolerance(t *testing.T) {
	if IsReconciled(d("99.97"), d("100")) {
		t.Fatalf("99.97 must not reconcile against 100")
	}
	if !IsReconciled(d("99.99"), d("100")) {
		t.Fatalf("99.99 should reconcile against 100")
	}
	if !IsReconciled(d("120"), d("100")) {
		t.Fatalf("overpayment should reconcile")
	}
	if FinalizeStatus(d("99.97"), d("100"), true) != domain.OrderStatusSettled {
		t.Fatalf("99.97 settles under the rounding tolerance")
	}
}

func TestIsPartialPayment(t *testing.T) {
	tests := []struct {
		selected  string
		remaining string
		want      bool
	}{
		{"60", "100", true},
		{"99.98", "100", false},
		{"99.97", "100", true},
		{"100", "100", false},
		{"120", "100", false},
	}
	for _, tt := range tests {
		if got := IsPartialPayment(d(tt.selected), d(tt.remaining)); got != tt.want {
			t.Fatalf("IsPartialPayment(%s, %s) = %v, want %v", tt.selected, tt.remaining, got, tt.want)
		}
	}
}

func TestTransitions(t *testing.T) {
	legal := [][2]domain.OrderStatus{
		{domain.OrderStatusDraft, domain.OrderStatusPartiallyPaid},
		{domain.OrderStatusPartiallyPaid, domain.OrderStatusSettled},
		{domain.OrderStatusDraft, domain.OrderStatusCancelled},
		{domain.OrderStatusPartiallyPaid, domain.OrderStatusCancelled},
		{domain.OrderStatusSettled, domain.OrderStatusReturned},
		{domain.OrderStatusSettled, domain.OrderStatusPartiallyReturned},
	}
	for _, tr := range legal {
		if err := Transition(tr[0], tr[1]); err != nil {
			t.Fatalf("expected %s -> %s to be legal: %v", tr[0], tr[1], err)
		}
	}

	illegal := [][2]domain.OrderStatus{
		{domain.OrderStatusSettled, domain.OrderStatusCancelled},
		{domain.OrderStatusSettled, domain.OrderStatusPartiallyPaid},
		{domain.OrderStatusDraft, domain.OrderStatusReturned},
		{domain.OrderStatusCancelled, domain.OrderStatusSettled},
		{domain.OrderStatusPartiallyReturned, domain.OrderStatusReturned},
		{domain.OrderStatusReturned, domain.OrderStatusPartiallyReturned},
	}
	for _, tr := range illegal {
		err := Transition(tr[0], tr[1])
		if !errors.Is(err, store.ErrIllegalTransition) {
			t.Fatalf("expected %s -> %s to be illegal, got %v", tr[0], tr[1], err)
		}
	}

	if err := CanCancel(domain.OrderStatusSettled); err == nil {
		t.Fatalf("settled orders cannot be cancelled")
	}
	if err := CanReturn(domain.OrderStatusPartiallyPaid); err == nil {
		t.Fatalf("unsettled orders cannot be returned")
	}
	if err := CanReopen(domain.OrderStatusSettled); err == nil {
		t.Fatalf("settled orders cannot be reopened")
	}
}

func TestReturnStatus(t *testing.T) {
	if status, partial := ReturnStatus(3, 3); status != domain.OrderStatusReturned || partial {
		t.Fatalf("expected full return, got %s partial=%v", status, partial)
	}
	if status, partial := ReturnStatus(3, 2); status != domain.OrderStatusPartiallyReturned || !partial {
		t.Fatalf("expected partial return, got %s partial=%v", status, partial)
	}
}

func cartWithLine(terminal string) domain.Cart {
	line := allocation.NewLine("ln-1", domain.Product{ID: "SOCKS-3PK", ListPrice: d("9.90")})
	return domain.Cart{TerminalID: terminal, StatusID: domain.OrderStatusDraft, Lines: []domain.CartLine{line}}
}

func TestFreezerLimitAndRestore(t *testing.T) {
	ctx := context.Background()
	frozenStore := memory.New()
	carts := memory.NewCartRepository()
	freezer := NewFreezer(frozenStore, carts, DefaultMaxFrozen)

	var ids []string
	for i := 0; i < DefaultMaxFrozen; i++ {
		cart := cartWithLine("T1")
		if err := carts.Save(ctx, cart); err != nil {
			t.Fatalf("save cart: %v", err)
		}
		frozen, err := freezer.Freeze(ctx, cart, "customer", "cashier")
		if err != nil {
			t.Fatalf("freeze %d: %v", i, err)
		}
		ids = append(ids, frozen.ID)
		if _, err := carts.Load(ctx, "T1"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected working cart cleared, got %v", err)
		}
	}

	fourth := cartWithLine("T1")
	if err := carts.Save(ctx, fourth); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	if _, err := freezer.Freeze(ctx, fourth, "", "cashier"); !errors.Is(err, store.ErrFreezeLimit) {
		t.Fatalf("expected freeze limit, got %v", err)
	}
	if cart, err := carts.Load(ctx, "T1"); err != nil || cart.Empty() {
		t.Fatalf("rejected freeze must leave the cart untouched: %v", err)
	}
	if _, err := freezer.Unfreeze(ctx, "T1", ids[0]); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict while cart is busy, got %v", err)
	}

	other := cartWithLine("T2")
	if _, err := freezer.Freeze(ctx, other, "", "cashier"); err != nil {
		t.Fatalf("limit is per terminal: %v", err)
	}

	if err := carts.Delete(ctx, "T1"); err != nil {
		t.Fatalf("delete cart: %v", err)
	}
	restored, err := freezer.Unfreeze(ctx, "T1", ids[1])
	if err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if len(restored.Lines) != 1 || restored.Lines[0].ProductID != "SOCKS-3PK" {
		t.Fatalf("unexpected restored cart %+v", restored)
	}
	list, err := freezer.List(ctx, "T1")
	if err != nil || len(list) != DefaultMaxFrozen-1 {
		t.Fatalf("expected %d frozen carts, got %d (%v)", DefaultMaxFrozen-1, len(list), err)
	}
	if _, err := freezer.Unfreeze(ctx, "T2", ids[0]); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("frozen carts are scoped to their terminal, got %v", err)
	}
}
