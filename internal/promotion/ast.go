package promotion

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/allocation"
	"retailpos/backend/internal/domain"
)

// Rule is a compiled promotion. It is immutable and safe to share between
// goroutines.
type Rule struct {
	Condition Condition
	Action    Action
}

func (r *Rule) String() string {
	return fmt.Sprintf("WHERE %s THEN %s", r.Condition, r.Action)
}

type Condition interface {
	Holds(cart domain.Cart) bool
	String() string
}

type Metric interface {
	Measure(cart domain.Cart) decimal.Decimal
	String() string
}

type Operator string

const (
	OpGTE Operator = ">="
	OpGT  Operator = ">"
	OpEQ  Operator = "="
	OpLTE Operator = "<="
	OpLT  Operator = "<"
)

func (op Operator) compare(a, b decimal.Decimal) bool {
	switch op {
	case OpGTE:
		return a.GreaterThanOrEqual(b)
	case OpGT:
		return a.GreaterThan(b)
	case OpEQ:
		return a.Equal(b)
	case OpLTE:
		return a.LessThanOrEqual(b)
	case OpLT:
		return a.LessThan(b)
	}
	return false
}

type Comparison struct {
	Metric Metric
	Op     Operator
	Value  decimal.Decimal
}

func (c Comparison) Holds(cart domain.Cart) bool {
	return c.Op.compare(c.Metric.Measure(cart), c.Value)
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Metric, c.Op, c.Value)
}

type And []Condition

func (a And) Holds(cart domain.Cart) bool {
	for _, c := range a {
		if !c.Holds(cart) {
			return false
		}
	}
	return true
}

func (a And) String() string {
	parts := make([]string, len(a))
	for i, c := range a {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

// CountAll is the total quantity in the cart.
type CountAll struct{}

func (CountAll) Measure(cart domain.Cart) decimal.Decimal {
	total := 0
	for _, line := range cart.Lines {
		total += line.Quantity
	}
	return decimal.NewFromInt(int64(total))
}

func (CountAll) String() string { return "COUNT(*)" }

// CountProduct is the quantity of one product in the cart.
type CountProduct struct {
	ProductID string
}

func (c CountProduct) Measure(cart domain.Cart) decimal.Decimal {
	total := 0
	for _, line := range cart.Lines {
		if line.ProductID == c.ProductID {
			total += line.Quantity
		}
	}
	return decimal.NewFromInt(int64(total))
}

func (c CountProduct) String() string { return fmt.Sprintf("COUNT(PRODUCT = '%s')", c.ProductID) }

// Subtotal is the undiscounted value of the cart.
type Subtotal struct{}

func (Subtotal) Measure(cart domain.Cart) decimal.Decimal {
	total := decimal.Zero
	for _, line := range cart.Lines {
		total = total.Add(allocation.BasePrice(line))
	}
	return total
}

func (Subtotal) String() string { return "SUBTOTAL" }

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "PERCENTAGE"
	DiscountFixed      DiscountKind = "FIXED"
)

type TargetKind string

const (
	TargetAll TargetKind = "ALL"
	// TargetCheapest discounts one unit of the line with the lowest list price.
	TargetCheapest TargetKind = "CHEAPEST"
	TargetFromNth  TargetKind = "FROM_NTH"
)

type Target struct {
	Kind TargetKind
	N    int
}

func (t Target) String() string {
	if t.Kind == TargetFromNth {
		return fmt.Sprintf("FROM_NTH(%d)", t.N)
	}
	return string(t.Kind)
}

type Action struct {
	Kind   DiscountKind
	Value  decimal.Decimal
	Target Target
}

func (a Action) String() string {
	return fmt.Sprintf("APPLY_DISCOUNT(%s, %s, %s)", a.Kind, a.Value, a.Target)
}
