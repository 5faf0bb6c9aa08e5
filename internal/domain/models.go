package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Size      string          `json:"size,omitempty"`
	ListPrice decimal.Decimal `json:"list_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Active    bool            `json:"active"`
}

// CartLine is one product+size entry of the working cart. UnitDiscountPercent
// always holds one entry per unit.
type CartLine struct {
	ID                  string            `json:"id"`
	ProductID           string            `json:"product_id"`
	Size                string            `json:"size,omitempty"`
	Name                string            `json:"name,omitempty"`
	Quantity            int               `json:"quantity"`
	UnitListPrice       decimal.Decimal   `json:"unit_list_price"`
	RowDiscountPercent  decimal.Decimal   `json:"row_discount_percent"`
	UnitDiscountPercent []decimal.Decimal `json:"unit_discount_percent"`
	RowTotal            decimal.Decimal   `json:"row_total"`
	IsFromReservation   bool              `json:"is_from_reservation"`
	StatusID            OrderStatus       `json:"status_id,omitempty"`
	OrderItemID         string            `json:"order_item_id,omitempty"`
}

type Cart struct {
	TerminalID     string      `json:"terminal_id"`
	StatusID       OrderStatus `json:"status_id"`
	WarehouseID    string      `json:"warehouse_id"`
	CurrentOrderID string      `json:"current_order_id,omitempty"`
	PromotionID    string      `json:"promotion_id,omitempty"`
	Lines          []CartLine  `json:"lines"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (c *Cart) Line(lineID string) (*CartLine, int) {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return &c.Lines[i], i
		}
	}
	return nil, -1
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

type Order struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	StatusID    OrderStatus     `json:"status_id"`
	WarehouseID string          `json:"warehouse_id"`
	TerminalID  string          `json:"terminal_id"`
	FinalTotal  decimal.Decimal `json:"final_total"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Items       []OrderItem     `json:"items"`
	Payments    []OrderPayment  `json:"payments"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderItem groups the units of a line that carry the same discount.
// FinalCost is per unit.
type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Size      string          `json:"size,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Discount  decimal.Decimal `json:"discount"`
	FinalCost decimal.Decimal `json:"final_cost"`
	Deleted   bool            `json:"deleted"`
}

type OrderPayment struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	PaymentMethodID string          `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	Tax             decimal.Decimal `json:"tax"`
	StatusID        PaymentStatus   `json:"status_id"`
	PaidAt          time.Time       `json:"paid_at"`
}

type Voucher struct {
	ID                 string          `json:"id"`
	Code               string          `json:"code"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	UsedAmount         decimal.Decimal `json:"used_amount"`
	StatusID           VoucherStatus   `json:"status_id"`
	OriginOrderID      string          `json:"origin_order_id"`
	DestinationOrderID string          `json:"destination_order_id,omitempty"`
	ValidFrom          time.Time       `json:"valid_from"`
	ValidTo            time.Time       `json:"valid_to"`
	CreatedAt          time.Time       `json:"created_at"`
}

func (v Voucher) Balance() decimal.Decimal {
	return v.TotalAmount.Sub(v.UsedAmount)
}

type StockAdjustment struct {
	ProductID     string         `json:"product_id"`
	WarehouseID   string         `json:"warehouse_id"`
	QuantityDelta int            `json:"quantity_delta"`
	Direction     StockDirection `json:"direction"`
}

// Inverse returns the adjustment that undoes a.
func (a StockAdjustment) Inverse() StockAdjustment {
	inv := a
	if a.Direction == StockAdd {
		inv.Direction = StockSubtract
	} else {
		inv.Direction = StockAdd
	}
	return inv
}

// Signed is the delta as applied to the stock counter.
func (a StockAdjustment) Signed() int {
	if a.Direction == StockSubtract {
		return -a.QuantityDelta
	}
	return a.QuantityDelta
}

type FrozenCart struct {
	ID         string    `json:"id"`
	TerminalID string    `json:"terminal_id"`
	Label      string    `json:"label"`
	FrozenBy   string    `json:"frozen_by"`
	Cart       Cart      `json:"cart"`
	FrozenAt   time.Time `json:"frozen_at"`
}

type Promotion struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type Notification struct {
	Level     NotificationLevel `json:"level"`
	Operation string            `json:"operation"`
	OrderID   string            `json:"order_id,omitempty"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	TerminalID    string    `json:"terminal_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
