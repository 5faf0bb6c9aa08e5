// Package allocation distributes discounts across the units of cart lines and
// keeps each line's unit discounts, row discount and row total consistent.
package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/store"
)

// NewLine builds a single-unit line for p. A sale price under the list price
// seeds the implied discount.
func NewLine(id string, p domain.Product) domain.CartLine {
	seed := decimal.Zero
	if p.SalePrice.IsPositive() && p.SalePrice.LessThan(p.ListPrice) {
		seed = money.DiscountFromPrices(p.ListPrice, p.SalePrice)
	}
	line := domain.CartLine{
		ID:                  id,
		ProductID:           p.ID,
		Size:                p.Size,
		Name:                p.Name,
		Quantity:            1,
		UnitListPrice:       p.ListPrice,
		UnitDiscountPercent: []decimal.Decimal{seed},
	}
	Recompute(&line)
	return line
}

// Recompute derives RowDiscountPercent and RowTotal from the unit discounts.
func Recompute(line *domain.CartLine) {
	total := decimal.Zero
	for _, pct := range line.UnitDiscountPercent {
		total = total.Add(money.DiscountedUnitPrice(line.UnitListPrice, pct))
	}
	line.RowTotal = total
	line.RowDiscountPercent = money.Round2(money.Mean(line.UnitDiscountPercent))
}

// IsUniform reports whether every unit carries the same discount.
func IsUniform(line domain.CartLine) bool {
	for i := 1; i < len(line.UnitDiscountPercent); i++ {
		if !line.UnitDiscountPercent[i].Equal(line.UnitDiscountPercent[0]) {
			return false
		}
	}
	return true
}

// BasePrice is the undiscounted value of the line.
func BasePrice(line domain.CartLine) decimal.Decimal {
	return line.UnitListPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// DiscountAmount is the money removed from the line by its unit discounts.
func DiscountAmount(line domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, pct := range line.UnitDiscountPercent {
		total = total.Add(money.DiscountAmount(line.UnitListPrice, pct))
	}
	return total
}

func ApplyRowDiscount(line *domain.CartLine, percent decimal.Decimal) error {
	if err := checkEditable(line); err != nil {
		return err
	}
	if err := checkPercent(percent); err != nil {
		return err
	}
	applyAverage(line, percent)
	return nil
}

func ApplyUnitDiscount(line *domain.CartLine, unit int, percent decimal.Decimal) error {
	if err := checkEditable(line); err != nil {
		return err
	}
	if err := checkPercent(percent); err != nil {
		return err
	}
	if unit < 0 || unit >= len(line.UnitDiscountPercent) {
		return fmt.Errorf("%w: unit %d out of range", store.ErrInvalidTransaction, unit)
	}
	line.UnitDiscountPercent[unit] = percent
	Recompute(line)
	return nil
}

// ApplyRowTotal rewrites the line discounts so the row sums to total.
func ApplyRowTotal(line *domain.CartLine, total decimal.Decimal) error {
	if err := checkEditable(line); err != nil {
		return err
	}
	base := BasePrice(*line)
	if total.IsNegative() || total.GreaterThan(base) {
		return fmt.Errorf("%w: row total must be within [0, %s]", store.ErrInvalidTransaction, money.Round2(base).StringFixed(2))
	}
	applyAverage(line, money.DiscountFromPrices(base, total))
	return nil
}

// ApplyOrderTotal rewrites the discounts of every editable line so the cart
// sums to total. Reservation lines keep their value and are subtracted from
// the target first.
func ApplyOrderTotal(cart *domain.Cart, total decimal.Decimal) error {
	var editable []int
	fixed := decimal.Zero
	base := decimal.Zero
	currentDiscount := decimal.Zero
	for i, line := range cart.Lines {
		if line.IsFromReservation {
			fixed = fixed.Add(line.RowTotal)
			continue
		}
		editable = append(editable, i)
		base = base.Add(BasePrice(line))
		currentDiscount = currentDiscount.Add(DiscountAmount(line))
	}
	if len(editable) == 0 || !base.IsPositive() {
		return fmt.Errorf("%w: no editable lines to discount", store.ErrInvalidTransaction)
	}
	target := total.Sub(fixed)
	if target.IsNegative() || target.GreaterThan(base) {
		return fmt.Errorf("%w: order total must be within [%s, %s]", store.ErrInvalidTransaction,
			money.Round2(fixed).StringFixed(2), money.Round2(fixed.Add(base)).StringFixed(2))
	}

	wanted := base.Sub(target)
	if currentDiscount.IsZero() {
		pct := money.ClampPercent(wanted.Mul(money.Hundred).DivRound(base, money.PercentPrecision))
		for _, i := range editable {
			setUniform(&cart.Lines[i], pct)
		}
		return nil
	}

	scale := wanted.DivRound(currentDiscount, money.PercentPrecision)
	for _, i := range editable {
		scaleUnits(&cart.Lines[i], scale)
	}
	return nil
}

// Resize grows or shrinks a line to quantity units. New units take the
// current row discount; shrinking drops trailing units.
func Resize(line *domain.CartLine, quantity int) error {
	if err := checkEditable(line); err != nil {
		return err
	}
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", store.ErrInvalidTransaction)
	}
	switch {
	case quantity > line.Quantity:
		for i := line.Quantity; i < quantity; i++ {
			line.UnitDiscountPercent = append(line.UnitDiscountPercent, line.RowDiscountPercent)
		}
	case quantity < line.Quantity:
		line.UnitDiscountPercent = line.UnitDiscountPercent[:quantity]
	}
	line.Quantity = quantity
	Recompute(line)
	return nil
}

// ResetDiscounts clears every unit discount of the line.
func ResetDiscounts(line *domain.CartLine) {
	setUniform(line, decimal.Zero)
}

func applyAverage(line *domain.CartLine, percent decimal.Decimal) {
	if IsUniform(*line) {
		setUniform(line, percent)
		return
	}
	current := DiscountAmount(*line)
	if current.IsZero() {
		setUniform(line, percent)
		return
	}
	target := money.DiscountAmount(BasePrice(*line), percent)
	scaleUnits(line, target.DivRound(current, money.PercentPrecision))
}

func setUniform(line *domain.CartLine, percent decimal.Decimal) {
	units := make([]decimal.Decimal, line.Quantity)
	for i := range units {
		units[i] = percent
	}
	line.UnitDiscountPercent = units
	Recompute(line)
}

func scaleUnits(line *domain.CartLine, factor decimal.Decimal) {
	units := make([]decimal.Decimal, len(line.UnitDiscountPercent))
	for i, pct := range line.UnitDiscountPercent {
		units[i] = money.ClampPercent(money.RoundPercent(pct.Mul(factor)))
	}
	line.UnitDiscountPercent = units
	Recompute(line)
}

func checkEditable(line *domain.CartLine) error {
	if line.IsFromReservation {
		return fmt.Errorf("%w: line %s", store.ErrReadOnlyLine, line.ID)
	}
	return nil
}

func checkPercent(p decimal.Decimal) error {
	if !money.ValidPercent(p) {
		return fmt.Errorf("%w: discount must be within [0, 100]", store.ErrInvalidTransaction)
	}
	return nil
}
