package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrFreezeLimit        = errors.New("frozen order limit reached")
	ErrReadOnlyLine       = errors.New("line is read-only")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// OrderStore persists orders and their unit-exploded items.
type OrderStore interface {
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	AddOrderItems(ctx context.Context, orderID string, items []domain.OrderItem) error
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	UpdateOrderTotal(ctx context.Context, orderID string, total decimal.Decimal) error
	SoftDeleteOrderItems(ctx context.Context, orderID string) error
	UpdateOrderItemQuantity(ctx context.Context, itemID string, quantity int) error
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, payment domain.OrderPayment) (*domain.OrderPayment, error)
	ListPayments(ctx context.Context, orderID string) ([]domain.OrderPayment, error)
	UpdatePaymentsStatus(ctx context.Context, orderID string, from domain.PaymentStatus, to domain.PaymentStatus) error
	UpdatePaymentStatus(ctx context.Context, paymentID string, status domain.PaymentStatus) error
}

// StockLedger applies signed deltas to the per-warehouse stock counter.
// Implementations apply each delta atomically.
type StockLedger interface {
	GetStock(ctx context.Context, productID string, warehouseID string) (int, error)
	AdjustStock(ctx context.Context, adj domain.StockAdjustment) error
}

type VoucherStore interface {
	CreateVoucher(ctx context.Context, voucher domain.Voucher) (*domain.Voucher, error)
	GetVoucher(ctx context.Context, voucherID string) (*domain.Voucher, error)
	RedeemVoucher(ctx context.Context, voucherID string, amount decimal.Decimal, destinationOrderID string, status domain.VoucherStatus) (*domain.Voucher, error)
	// ReleaseVoucher gives back an amount taken by RedeemVoucher.
	ReleaseVoucher(ctx context.Context, voucherID string, amount decimal.Decimal) (*domain.Voucher, error)
}

// CartRepository holds the working cart of each terminal.
type CartRepository interface {
	Load(ctx context.Context, terminalID string) (*domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, terminalID string) error
}

type FrozenCartStore interface {
	CreateFrozenCart(ctx context.Context, frozen domain.FrozenCart) (*domain.FrozenCart, error)
	CountFrozenCarts(ctx context.Context, terminalID string) (int, error)
	ListFrozenCarts(ctx context.Context, terminalID string) ([]domain.FrozenCart, error)
	PopFrozenCart(ctx context.Context, terminalID string, frozenID string) (*domain.FrozenCart, error)
	DeleteFrozenCart(ctx context.Context, terminalID string, frozenID string) error
}

type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
}

type PromotionStore interface {
	CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	GetPromotion(ctx context.Context, promotionID string) (*domain.Promotion, error)
	ListPromotions(ctx context.Context) ([]domain.Promotion, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// Repository is the full persistence surface a backing store provides.
type Repository interface {
	OrderStore
	PaymentStore
	StockLedger
	VoucherStore
	FrozenCartStore
	Catalog
	PromotionStore
	UserStore
	AuditStore
}
