package domain

// OrderStatus is the persisted status code of an order.
type OrderStatus int

const (
	OrderStatusNone                 OrderStatus = 0
	OrderStatusDraft                OrderStatus = 16
	OrderStatusPartiallyPaid        OrderStatus = 17
	OrderStatusSettled              OrderStatus = 18
	OrderStatusCancelled            OrderStatus = 19
	OrderStatusReturned             OrderStatus = 20
	OrderStatusCancelledPaymentVoid OrderStatus = 21
	OrderStatusPartiallyReturned    OrderStatus = 26
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNone:
		return "none"
	case OrderStatusDraft:
		return "draft"
	case OrderStatusPartiallyPaid:
		return "partially_paid"
	case OrderStatusSettled:
		return "settled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusReturned:
		return "returned"
	case OrderStatusCancelledPaymentVoid:
		return "cancelled_payment_void"
	case OrderStatusPartiallyReturned:
		return "partially_returned"
	default:
		return "unknown"
	}
}

type PaymentStatus int

const (
	PaymentStatusCompleted     PaymentStatus = 6
	PaymentStatusCancelledVoid PaymentStatus = 21
)

type VoucherStatus int

const (
	VoucherStatusValid         VoucherStatus = 23
	VoucherStatusFullyUsed     VoucherStatus = 24
	VoucherStatusPartiallyUsed VoucherStatus = 25
)

type StockDirection string

const (
	StockAdd      StockDirection = "add"
	StockSubtract StockDirection = "subtract"
)

type RefundMethod string

const (
	RefundVoucher RefundMethod = "voucher"
	RefundCash    RefundMethod = "cash"
	RefundCard    RefundMethod = "card"
)

func (m RefundMethod) Valid() bool {
	switch m {
	case RefundVoucher, RefundCash, RefundCard:
		return true
	}
	return false
}

type NotificationLevel string

const (
	NotifyInfo      NotificationLevel = "info"
	NotifyError     NotificationLevel = "error"
	NotifyReconcile NotificationLevel = "reconcile"
)

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)
