package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/saga"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/guard"
	"retailpos/backend/internal/store/memory"
)

const (
	testWarehouse = "wh-main"
	testTerminal  = "till-01"
)

var errLedgerDown = errors.New("ledger down")

type noteRecorder struct {
	notes []domain.Notification
}

func (r *noteRecorder) Notify(_ context.Context, n domain.Notification) error {
	r.notes = append(r.notes, n)
	return nil
}

func (r *noteRecorder) last() domain.Notification {
	if len(r.notes) == 0 {
		return domain.Notification{}
	}
	return r.notes[len(r.notes)-1]
}

// flakyLedger fails the failAt-th AdjustStock call counted from the last
// arm. With failRest every later call fails too.
type flakyLedger struct {
	store.StockLedger
	calls    int
	failAt   int
	failRest bool
}

func (l *flakyLedger) arm(failAt int, failRest bool) {
	l.calls, l.failAt, l.failRest = 0, failAt, failRest
}

func (l *flakyLedger) AdjustStock(ctx context.Context, adj domain.StockAdjustment) error {
	l.calls++
	if l.failAt > 0 && (l.calls == l.failAt || (l.failRest && l.calls > l.failAt)) {
		return errLedgerDown
	}
	return l.StockLedger.AdjustStock(ctx, adj)
}

type fixture struct {
	svc    *Service
	repo   *memory.Store
	ledger *flakyLedger
	notes  *noteRecorder
}

func newTestService(t *testing.T) fixture {
	t.Helper()
	repo := memory.NewSeeded(testWarehouse, nil)
	ledger := &flakyLedger{StockLedger: repo}
	notes := &noteRecorder{}
	svc := New(Deps{
		Repo:     repo,
		Stock:    ledger,
		Carts:    memory.NewCartRepository(),
		Notifier: notes,
		Settings: Settings{DefaultWarehouseID: testWarehouse},
	})
	return fixture{svc: svc, repo: repo, ledger: ledger, notes: notes}
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "manager", Role: domain.RoleManager})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func cash(amount string) []domain.PaymentInput {
	return []domain.PaymentInput{{MethodID: "cash", Amount: dec(amount)}}
}

func mustAdd(t *testing.T, f fixture, productID string, qty int) domain.CartResponse {
	t.Helper()
	resp, err := f.svc.AddProduct(cashierCtx(), testTerminal, domain.AddLineRequest{ProductID: productID, Quantity: qty})
	if err != nil {
		t.Fatalf("add %s: %v", productID, err)
	}
	return resp
}

func mustCheckout(t *testing.T, f fixture, req domain.CheckoutRequest) domain.CheckoutResponse {
	t.Helper()
	resp, err := f.svc.Checkout(cashierCtx(), testTerminal, req)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return resp
}

func stockOf(t *testing.T, f fixture, productID string) int {
	t.Helper()
	qty, err := f.repo.GetStock(context.Background(), productID, testWarehouse)
	if err != nil {
		t.Fatalf("get stock %s: %v", productID, err)
	}
	return qty
}

func TestAddProductSeedsSaleDiscount(t *testing.T) {
	f := newTestService(t)

	resp := mustAdd(t, f, "JEANS-SLIM-32", 2)
	line := resp.Cart.Lines[0]
	if !line.RowDiscountPercent.Equal(dec("25")) {
		t.Fatalf("expected 25%% seeded discount, got %s", line.RowDiscountPercent)
	}
	if !line.RowTotal.Equal(dec("88.50")) {
		t.Fatalf("expected row total 88.50, got %s", line.RowTotal)
	}
	if resp.Cart.StatusID != domain.OrderStatusDraft {
		t.Fatalf("expected draft cart, got %s", resp.Cart.StatusID)
	}

	resp = mustAdd(t, f, "JEANS-SLIM-32", 1)
	if len(resp.Cart.Lines) != 1 || resp.Cart.Lines[0].Quantity != 3 {
		t.Fatalf("expected a single merged line of 3, got %+v", resp.Cart.Lines)
	}
}

func TestAddProductRejectsInsufficientStock(t *testing.T) {
	f := newTestService(t)
	f.repo.SetStock("CAP-LOGO", testWarehouse, 1)

	mustAdd(t, f, "CAP-LOGO", 1)
	_, err := f.svc.AddProduct(cashierCtx(), testTerminal, domain.AddLineRequest{ProductID: "CAP-LOGO", Quantity: 1})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	cart, err := f.svc.GetCart(cashierCtx(), testTerminal)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if cart.Cart.Lines[0].Quantity != 1 {
		t.Fatalf("cart must be unchanged, got quantity %d", cart.Cart.Lines[0].Quantity)
	}
}

func TestLineDiscountScenario(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()
	if _, err := f.repo.UpsertProduct(ctx, domain.Product{ID: "TEE-10", Name: "Tee", Size: "S", ListPrice: dec("10.00"), Active: true}); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	f.repo.SetStock("TEE-10", testWarehouse, 10)

	lineID := mustAdd(t, f, "TEE-10", 3).Cart.Lines[0].ID
	resp, err := f.svc.ApplyLineDiscount(ctx, testTerminal, lineID, dec("10"))
	if err != nil {
		t.Fatalf("row discount: %v", err)
	}
	if !resp.Cart.Lines[0].RowTotal.Equal(dec("27")) {
		t.Fatalf("expected 27.00, got %s", resp.Cart.Lines[0].RowTotal)
	}

	resp, err = f.svc.ApplyUnitDiscount(ctx, testTerminal, lineID, 0, dec("50"))
	if err != nil {
		t.Fatalf("unit discount: %v", err)
	}
	line := resp.Cart.Lines[0]
	if !line.RowDiscountPercent.Equal(dec("23.33")) || !line.RowTotal.Equal(dec("23")) {
		t.Fatalf("expected 23.33%% and 23.00, got %s%% and %s", line.RowDiscountPercent, line.RowTotal)
	}

	if _, err := f.svc.ApplyLineDiscount(ctx, testTerminal, lineID, dec("101")); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckoutSettlesAndGivesChange(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "TSHIRT-BASIC-M", 2)

	resp := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("50")})
	if resp.Status != domain.OrderStatusSettled.String() {
		t.Fatalf("expected settled, got %s", resp.Status)
	}
	if !resp.Change.Equal(dec("10.2")) {
		t.Fatalf("expected change 10.20, got %s", resp.Change)
	}
	if !resp.Order.FinalTotal.Equal(dec("39.8")) {
		t.Fatalf("expected total 39.80, got %s", resp.Order.FinalTotal)
	}
	if len(resp.Order.Payments) != 1 || !resp.Order.Payments[0].Amount.Equal(dec("39.8")) {
		t.Fatalf("expected one payment of 39.80, got %+v", resp.Order.Payments)
	}
	if got := stockOf(t, f, "TSHIRT-BASIC-M"); got != 38 {
		t.Fatalf("expected stock 38, got %d", got)
	}
	cart, _ := f.svc.GetCart(cashierCtx(), testTerminal)
	if !cart.Cart.Empty() {
		t.Fatalf("cart must be cleared after checkout")
	}
	if f.notes.last().Level != domain.NotifyInfo {
		t.Fatalf("expected info notification, got %+v", f.notes.last())
	}
}

func TestCheckoutWithoutPaymentLeavesDraft(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "HOODIE-ZIP-M", 1)

	resp := mustCheckout(t, f, domain.CheckoutRequest{})
	if resp.Status != domain.OrderStatusDraft.String() || !resp.IsPartial {
		t.Fatalf("expected partial draft, got %s partial=%v", resp.Status, resp.IsPartial)
	}
	if !resp.Balance.Equal(dec("49")) {
		t.Fatalf("expected balance 49.00, got %s", resp.Balance)
	}
}

func TestDepositThenSettleReopenedReservation(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "JEANS-SLIM-32", 1)

	first := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("20")})
	if first.Status != domain.OrderStatusPartiallyPaid.String() {
		t.Fatalf("expected partially paid, got %s", first.Status)
	}

	cart, err := f.svc.LoadReservation(cashierCtx(), testTerminal, first.Order.ID)
	if err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	line := cart.Cart.Lines[0]
	if !line.IsFromReservation || !line.RowTotal.Equal(dec("44.25")) {
		t.Fatalf("expected read-only reservation line of 44.25, got %+v", line)
	}
	if _, err := f.svc.ApplyLineDiscount(cashierCtx(), testTerminal, line.ID, dec("50")); !errors.Is(err, store.ErrReadOnlyLine) {
		t.Fatalf("expected read-only line error, got %v", err)
	}

	second := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("24.25")})
	if second.Order.ID != first.Order.ID || second.Status != domain.OrderStatusSettled.String() {
		t.Fatalf("expected order %s settled, got %s %s", first.Order.ID, second.Order.ID, second.Status)
	}
	if got := stockOf(t, f, "JEANS-SLIM-32"); got != 39 {
		t.Fatalf("reopened lines must not take stock twice, got %d", got)
	}

	summary, err := f.svc.GetOrder(cashierCtx(), first.Order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !summary.PaidInFull || !summary.Paid.Equal(dec("44.25")) {
		t.Fatalf("expected paid in full 44.25, got %+v", summary)
	}
}

func TestLoadReservationRejectsSettledOrder(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "SOCKS-3PK", 1)
	resp := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("9.90")})

	_, err := f.svc.LoadReservation(cashierCtx(), testTerminal, resp.Order.ID)
	if !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
}

func TestCancelReservationRestoresStockAndIssuesVoucher(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "JEANS-SLIM-32", 1)
	order := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("20")}).Order

	resp, err := f.svc.CancelReservation(managerCtx(), domain.CancelRequest{
		OrderID:      order.ID,
		RefundMethod: domain.RefundVoucher,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if resp.Voucher == nil || !resp.Voucher.TotalAmount.Equal(dec("20")) {
		t.Fatalf("expected voucher for the 20.00 deposit, got %+v", resp.Voucher)
	}
	if !resp.Voucher.ValidTo.After(resp.Voucher.ValidFrom.AddDate(0, 11, 0)) {
		t.Fatalf("voucher should be valid for a year")
	}
	if got := stockOf(t, f, "JEANS-SLIM-32"); got != 40 {
		t.Fatalf("expected stock back to 40, got %d", got)
	}

	saved, err := f.repo.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if saved.StatusID != domain.OrderStatusCancelled || len(saved.Items) != 0 {
		t.Fatalf("expected cancelled order without items, got %s with %d items", saved.StatusID, len(saved.Items))
	}
	for _, p := range saved.Payments {
		if p.StatusID != domain.PaymentStatusCancelledVoid {
			t.Fatalf("payment %s not voided", p.ID)
		}
	}

	_, err = f.svc.CancelReservation(managerCtx(), domain.CancelRequest{OrderID: order.ID})
	if !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("second cancel must be rejected, got %v", err)
	}
}

func TestCancelRejectsDepositAboveCollected(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "BELT-LEATHER", 1)
	order := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("5")}).Order

	_, err := f.svc.CancelReservation(managerCtx(), domain.CancelRequest{OrderID: order.ID, DepositAmount: dec("6")})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func reserveThree(t *testing.T, f fixture) domain.Order {
	t.Helper()
	for _, id := range []string{"TSHIRT-BASIC-M", "HOODIE-ZIP-M", "CAP-LOGO"} {
		mustAdd(t, f, id, 1)
	}
	return mustCheckout(t, f, domain.CheckoutRequest{}).Order
}

func TestCancelRollsBackStockWhenLaterCallFails(t *testing.T) {
	f := newTestService(t)
	order := reserveThree(t, f)

	f.ledger.arm(3, false)
	_, err := f.svc.CancelReservation(managerCtx(), domain.CancelRequest{OrderID: order.ID, RefundMethod: domain.RefundCash})
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected original cause, got %v", err)
	}
	var sagaErr *saga.Error
	if !errors.As(err, &sagaErr) || sagaErr.NeedsReconciliation() {
		t.Fatalf("expected clean rollback, got %v", err)
	}
	for _, id := range []string{"TSHIRT-BASIC-M", "HOODIE-ZIP-M", "CAP-LOGO"} {
		if got := stockOf(t, f, id); got != 39 {
			t.Fatalf("%s: expected net zero stock change, got %d", id, got)
		}
	}
	if n := f.notes.last(); n.Level != domain.NotifyError || n.OrderID != order.ID {
		t.Fatalf("expected error notification, got %+v", n)
	}

	saved, _ := f.repo.GetOrder(context.Background(), order.ID)
	if saved.StatusID != domain.OrderStatusCancelled {
		t.Fatalf("status change is committed before stock, got %s", saved.StatusID)
	}
}

func TestCancelFlagsReconciliationWhenRollbackFails(t *testing.T) {
	f := newTestService(t)
	order := reserveThree(t, f)
	before := len(f.notes.notes)

	f.ledger.arm(3, true)
	_, err := f.svc.CancelReservation(managerCtx(), domain.CancelRequest{OrderID: order.ID})
	var sagaErr *saga.Error
	if !errors.As(err, &sagaErr) || !sagaErr.NeedsReconciliation() {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
	if len(sagaErr.CompensationErrors) != 2 {
		t.Fatalf("expected both rollback calls reported, got %d", len(sagaErr.CompensationErrors))
	}
	if len(f.notes.notes) != before+1 {
		t.Fatalf("expected exactly one notification, got %d", len(f.notes.notes)-before)
	}
	if f.notes.last().Level != domain.NotifyReconcile {
		t.Fatalf("expected reconcile notification, got %s", f.notes.last().Level)
	}
}

func sellThree(t *testing.T, f fixture) domain.Order {
	t.Helper()
	for _, id := range []string{"TSHIRT-BASIC-M", "HOODIE-ZIP-M", "CAP-LOGO"} {
		mustAdd(t, f, id, 1)
	}
	return mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("100")}).Order
}

func returnAll(order domain.Order) domain.ReturnRequest {
	lines := make([]domain.ReturnLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, domain.ReturnLine{ItemID: item.ID, Quantity: item.Quantity})
	}
	return domain.ReturnRequest{OrderID: order.ID, RefundMethod: domain.RefundCash, Items: lines}
}

func TestProcessReturnRollsBackStockWhenLaterCallFails(t *testing.T) {
	f := newTestService(t)
	order := sellThree(t, f)

	f.ledger.arm(2, false)
	_, err := f.svc.ProcessReturn(managerCtx(), returnAll(order))
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected original cause, got %v", err)
	}
	var sagaErr *saga.Error
	if !errors.As(err, &sagaErr) || sagaErr.NeedsReconciliation() {
		t.Fatalf("expected clean rollback, got %v", err)
	}
	for _, id := range []string{"TSHIRT-BASIC-M", "HOODIE-ZIP-M", "CAP-LOGO"} {
		if got := stockOf(t, f, id); got != 39 {
			t.Fatalf("%s: expected net zero stock change, got %d", id, got)
		}
	}
	if n := f.notes.last(); n.Level != domain.NotifyError || n.OrderID != order.ID {
		t.Fatalf("expected error notification, got %+v", n)
	}
	items, _ := f.repo.GetOrderItems(context.Background(), order.ID)
	for _, item := range items {
		if item.Quantity != 1 {
			t.Fatalf("item %s must keep its quantity, got %d", item.ID, item.Quantity)
		}
	}
}

func TestProcessReturnFlagsReconciliationWhenRollbackFails(t *testing.T) {
	f := newTestService(t)
	order := sellThree(t, f)

	f.ledger.arm(2, true)
	_, err := f.svc.ProcessReturn(managerCtx(), returnAll(order))
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected original cause, got %v", err)
	}
	var sagaErr *saga.Error
	if !errors.As(err, &sagaErr) || !sagaErr.NeedsReconciliation() {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
	if len(sagaErr.CompensationErrors) != 1 {
		t.Fatalf("expected one failed rollback call, got %d", len(sagaErr.CompensationErrors))
	}
	if f.notes.last().Level != domain.NotifyReconcile {
		t.Fatalf("expected reconcile notification, got %s", f.notes.last().Level)
	}
}

func TestCancelRollbackLandsThroughOpenBreaker(t *testing.T) {
	repo := memory.NewSeeded(testWarehouse, nil)
	flaky := &flakyLedger{StockLedger: repo}
	svc := New(Deps{
		Repo:     repo,
		Stock:    guard.NewStockLedger(flaky, guard.Settings{MaxFailures: 1}, nil),
		Carts:    memory.NewCartRepository(),
		Notifier: &noteRecorder{},
		Settings: Settings{DefaultWarehouseID: testWarehouse},
	})
	f := fixture{svc: svc, repo: repo, ledger: flaky}
	order := reserveThree(t, f)

	flaky.arm(3, false)
	_, err := svc.CancelReservation(managerCtx(), domain.CancelRequest{OrderID: order.ID, RefundMethod: domain.RefundCash})
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected original cause, got %v", err)
	}
	for _, id := range []string{"TSHIRT-BASIC-M", "HOODIE-ZIP-M", "CAP-LOGO"} {
		if got := stockOf(t, f, id); got != 39 {
			t.Fatalf("%s: expected net zero stock change, got %d", id, got)
		}
	}
}

func TestProcessReturnPartialThenRejectsSecondReturn(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "TSHIRT-BASIC-M", 3)
	order := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("59.70")}).Order
	itemID := order.Items[0].ID

	resp, err := f.svc.ProcessReturn(managerCtx(), domain.ReturnRequest{
		OrderID:      order.ID,
		RefundMethod: domain.RefundVoucher,
		Items:        []domain.ReturnLine{{ItemID: itemID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if resp.Status != domain.OrderStatusPartiallyReturned.String() || !resp.Partial {
		t.Fatalf("expected partial return, got %s", resp.Status)
	}
	if !resp.RefundAmount.Equal(dec("39.8")) || !resp.NewTotal.Equal(dec("19.9")) {
		t.Fatalf("expected refund 39.80 and total 19.90, got %s and %s", resp.RefundAmount, resp.NewTotal)
	}
	if resp.Voucher == nil || !resp.Voucher.TotalAmount.Equal(dec("39.8")) {
		t.Fatalf("expected voucher of 39.80, got %+v", resp.Voucher)
	}
	if got := stockOf(t, f, "TSHIRT-BASIC-M"); got != 39 {
		t.Fatalf("expected stock 39, got %d", got)
	}
	items, _ := f.repo.GetOrderItems(context.Background(), order.ID)
	if items[0].Quantity != 1 {
		t.Fatalf("expected item quantity 1, got %d", items[0].Quantity)
	}

	_, err = f.svc.ProcessReturn(managerCtx(), domain.ReturnRequest{
		OrderID: order.ID,
		Items:   []domain.ReturnLine{{ItemID: itemID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
}

func TestProcessReturnFullCashRefund(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "TSHIRT-BASIC-L", 1)
	order := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("19.90")}).Order

	resp, err := f.svc.ProcessReturn(managerCtx(), domain.ReturnRequest{
		OrderID:      order.ID,
		RefundMethod: domain.RefundCash,
		Items:        []domain.ReturnLine{{ItemID: order.Items[0].ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if resp.Status != domain.OrderStatusReturned.String() || resp.Partial {
		t.Fatalf("expected full return, got %s", resp.Status)
	}
	if resp.Voucher != nil || resp.Refund == nil || !resp.Refund.Amount.Equal(dec("-19.9")) {
		t.Fatalf("expected negative cash payment, got voucher=%v refund=%+v", resp.Voucher, resp.Refund)
	}
}

func TestProcessReturnValidatesQuantities(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "SOCKS-3PK", 2)
	order := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("19.80")}).Order
	itemID := order.Items[0].ID

	tests := []struct {
		name  string
		items []domain.ReturnLine
		want  error
	}{
		{"too many", []domain.ReturnLine{{ItemID: itemID, Quantity: 3}}, store.ErrInvalidTransaction},
		{"negative", []domain.ReturnLine{{ItemID: itemID, Quantity: -1}}, store.ErrInvalidTransaction},
		{"nothing", []domain.ReturnLine{{ItemID: itemID, Quantity: 0}}, store.ErrInvalidTransaction},
		{"duplicate", []domain.ReturnLine{{ItemID: itemID, Quantity: 1}, {ItemID: itemID, Quantity: 1}}, store.ErrInvalidTransaction},
		{"unknown item", []domain.ReturnLine{{ItemID: "item-missing", Quantity: 1}}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ProcessReturn(managerCtx(), domain.ReturnRequest{OrderID: order.ID, Items: tt.items})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if got := stockOf(t, f, "SOCKS-3PK"); got != 38 {
		t.Fatalf("rejected returns must not touch stock, got %d", got)
	}
}

func TestVoucherPaysForLaterOrder(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "JEANS-SLIM-32", 1)
	order := mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("20")}).Order
	cancelled, err := f.svc.CancelReservation(managerCtx(), domain.CancelRequest{OrderID: order.ID})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	mustAdd(t, f, "TSHIRT-BASIC-M", 1)
	resp := mustCheckout(t, f, domain.CheckoutRequest{VoucherIDs: []string{cancelled.Voucher.ID}})
	if resp.Status != domain.OrderStatusSettled.String() {
		t.Fatalf("expected settled, got %s", resp.Status)
	}
	if len(resp.VouchersUsed) != 1 || resp.VouchersUsed[0].StatusID != domain.VoucherStatusPartiallyUsed {
		t.Fatalf("expected partially used voucher, got %+v", resp.VouchersUsed)
	}
	if !resp.VouchersUsed[0].Balance().Equal(dec("0.1")) {
		t.Fatalf("expected 0.10 left, got %s", resp.VouchersUsed[0].Balance())
	}

	mustAdd(t, f, "SOCKS-3PK", 1)
	_, err = f.svc.Checkout(cashierCtx(), testTerminal, domain.CheckoutRequest{
		Payments:   cash("9.90"),
		VoucherIDs: []string{cancelled.Voucher.ID},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("voucher that is not needed must be rejected, got %v", err)
	}
}

func TestFreezeLimitPerTerminal(t *testing.T) {
	f := newTestService(t)
	ctx := cashierCtx()

	for i := 0; i < 3; i++ {
		mustAdd(t, f, "CAP-LOGO", 1)
		if _, err := f.svc.Freeze(ctx, testTerminal, ""); err != nil {
			t.Fatalf("freeze %d: %v", i+1, err)
		}
	}
	mustAdd(t, f, "BELT-LEATHER", 1)
	if _, err := f.svc.Freeze(ctx, testTerminal, "fourth"); !errors.Is(err, store.ErrFreezeLimit) {
		t.Fatalf("expected freeze limit, got %v", err)
	}
	cart, _ := f.svc.GetCart(ctx, testTerminal)
	if len(cart.Cart.Lines) != 1 || cart.Cart.Lines[0].ProductID != "BELT-LEATHER" {
		t.Fatalf("working cart must survive a rejected freeze")
	}

	if _, err := f.svc.Freeze(ctx, "till-02", ""); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("empty cart must not freeze, got %v", err)
	}

	list, err := f.svc.ListFrozen(ctx, testTerminal)
	if err != nil || len(list.Items) != 3 || list.Limit != 3 {
		t.Fatalf("expected 3 of 3 frozen, got %+v err=%v", list, err)
	}
	frozenID := list.Items[0].ID
	if _, err := f.svc.Unfreeze(ctx, testTerminal, frozenID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on busy cart, got %v", err)
	}
	if err := f.svc.ResetCart(ctx, testTerminal); err != nil {
		t.Fatalf("reset: %v", err)
	}
	restored, err := f.svc.Unfreeze(ctx, testTerminal, frozenID)
	if err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if restored.Cart.Lines[0].ProductID != "CAP-LOGO" {
		t.Fatalf("unexpected restored cart %+v", restored.Cart)
	}
	if err := f.svc.DiscardFrozen(ctx, testTerminal, list.Items[1].ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	list, _ = f.svc.ListFrozen(ctx, testTerminal)
	if len(list.Items) != 1 {
		t.Fatalf("expected one frozen cart left, got %d", len(list.Items))
	}
}

func TestPromotionFollowsCartChanges(t *testing.T) {
	f := newTestService(t)

	if _, err := f.svc.CreatePromotion(cashierCtx(), domain.PromotionRequest{Name: "x", Expression: "WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 50, CHEAPEST)", Active: true}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("cashier must not create promotions, got %v", err)
	}
	if _, err := f.svc.CreatePromotion(managerCtx(), domain.PromotionRequest{Name: "bad", Expression: "WHERE COUNT(*) >=", Active: true}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected grammar error, got %v", err)
	}
	promo, err := f.svc.CreatePromotion(managerCtx(), domain.PromotionRequest{
		Name:       "3 for 2.5",
		Expression: "where count(*) >= 3 then apply_discount(percentage, 50, cheapest)",
		Active:     true,
	})
	if err != nil {
		t.Fatalf("create promotion: %v", err)
	}

	tshirt := mustAdd(t, f, "TSHIRT-BASIC-M", 2).Cart.Lines[0].ID
	mustAdd(t, f, "CAP-LOGO", 1)

	first, err := f.svc.ApplyPromotion(cashierCtx(), testTerminal, promo.ID)
	if err != nil || !first.Applied {
		t.Fatalf("expected promotion applied, got %+v err=%v", first, err)
	}
	if !first.Summary.Total.Equal(dec("47.05")) {
		t.Fatalf("expected total 47.05, got %s", first.Summary.Total)
	}
	again, err := f.svc.ApplyPromotion(cashierCtx(), testTerminal, promo.ID)
	if err != nil || !again.Summary.Total.Equal(first.Summary.Total) {
		t.Fatalf("re-evaluation must not compound, got %s", again.Summary.Total)
	}

	resp, err := f.svc.SetQuantity(cashierCtx(), testTerminal, tshirt, 1)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if !resp.Summary.Total.Equal(dec("34.4")) {
		t.Fatalf("promotion should lapse below 3 units, got total %s", resp.Summary.Total)
	}
}

func TestAuditTrailRequiresManager(t *testing.T) {
	f := newTestService(t)
	mustAdd(t, f, "SOCKS-3PK", 1)
	mustCheckout(t, f, domain.CheckoutRequest{Payments: cash("9.90")})

	if _, err := f.svc.ListAuditLogs(cashierCtx(), "", 10); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	logs, err := f.svc.ListAuditLogs(managerCtx(), "", 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "checkout" && entry.ActorUsername == "cashier" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected checkout audit entry, got %+v", logs)
	}
}
