package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CartSummary struct {
	Units    int             `json:"units"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

type CartResponse struct {
	Cart    Cart        `json:"cart"`
	Summary CartSummary `json:"summary"`
}

type AddLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type PercentRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

type TotalRequest struct {
	Total decimal.Decimal `json:"total"`
}

type PromotionResult struct {
	CartResponse
	PromotionID string `json:"promotion_id"`
	Applied     bool   `json:"applied"`
}

type PaymentInput struct {
	MethodID string          `json:"method_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type CheckoutRequest struct {
	Payments   []PaymentInput `json:"payments"`
	VoucherIDs []string       `json:"voucher_ids,omitempty"`
}

type CheckoutResponse struct {
	Order        Order           `json:"order"`
	Status       string          `json:"status"`
	IsPartial    bool            `json:"is_partial"`
	Collected    decimal.Decimal `json:"collected"`
	Balance      decimal.Decimal `json:"balance"`
	Change       decimal.Decimal `json:"change"`
	VouchersUsed []Voucher       `json:"vouchers_used,omitempty"`
}

type CancelRequest struct {
	OrderID       string          `json:"-"`
	WarehouseID   string          `json:"warehouse_id"`
	RefundMethod  RefundMethod    `json:"refund_method"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
}

type CancelResponse struct {
	OrderID       string            `json:"order_id"`
	Status        string            `json:"status"`
	Voucher       *Voucher          `json:"voucher,omitempty"`
	StockRestored []StockAdjustment `json:"stock_restored"`
}

type ReturnLine struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type ReturnRequest struct {
	OrderID      string       `json:"-"`
	WarehouseID  string       `json:"warehouse_id"`
	RefundMethod RefundMethod `json:"refund_method"`
	Items        []ReturnLine `json:"items"`
}

type ReturnResponse struct {
	OrderID       string            `json:"order_id"`
	Status        string            `json:"status"`
	Partial       bool              `json:"partial"`
	NewTotal      decimal.Decimal   `json:"new_total"`
	RefundAmount  decimal.Decimal   `json:"refund_amount"`
	Voucher       *Voucher          `json:"voucher,omitempty"`
	Refund        *OrderPayment     `json:"refund,omitempty"`
	StockRestored []StockAdjustment `json:"stock_restored"`
}

type FreezeRequest struct {
	Label string `json:"label"`
}

type FrozenListResponse struct {
	Items []FrozenCart `json:"items"`
	Limit int          `json:"limit"`
}

type PromotionRequest struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Active     bool   `json:"active"`
}

type StockReceiveRequest struct {
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
}

type OrderSummary struct {
	Order      Order           `json:"order"`
	Status     string          `json:"status"`
	Paid       decimal.Decimal `json:"paid"`
	Balance    decimal.Decimal `json:"balance"`
	PaidInFull bool            `json:"paid_in_full"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
