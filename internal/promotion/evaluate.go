package promotion

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/allocation"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/money"
)

type unitRef struct {
	line  int
	unit  int
	price decimal.Decimal
}

// Evaluate clears the discounts of every editable line and, when the rule's
// condition holds, applies its action. Repeated calls on an unchanged cart
// produce the same discounts. It reports whether the action was applied.
func Evaluate(cart *domain.Cart, rule *Rule) (bool, error) {
	for i := range cart.Lines {
		if !cart.Lines[i].IsFromReservation {
			allocation.ResetDiscounts(&cart.Lines[i])
		}
	}
	if !rule.Condition.Holds(*cart) {
		return false, nil
	}

	targets := selectUnits(*cart, rule.Action.Target)
	for _, ref := range targets {
		line := &cart.Lines[ref.line]
		if err := allocation.ApplyUnitDiscount(line, ref.unit, unitPercent(rule.Action, ref.price)); err != nil {
			return false, err
		}
	}
	return len(targets) > 0, nil
}

func unitPercent(a Action, price decimal.Decimal) decimal.Decimal {
	if a.Kind == DiscountFixed {
		return money.DiscountFromPrices(price, price.Sub(a.Value))
	}
	return a.Value
}

func selectUnits(cart domain.Cart, target Target) []unitRef {
	var units []unitRef
	for i, line := range cart.Lines {
		if line.IsFromReservation {
			continue
		}
		for u := 0; u < line.Quantity; u++ {
			units = append(units, unitRef{line: i, unit: u, price: line.UnitListPrice})
		}
	}
	if len(units) == 0 {
		return nil
	}

	switch target.Kind {
	case TargetCheapest:
		cheapest := units[0]
		for _, u := range units[1:] {
			if u.price.LessThan(cheapest.price) {
				cheapest = u
			}
		}
		return []unitRef{cheapest}
	case TargetFromNth:
		// most expensive first, so the discount lands on the cheaper units
		slices.SortStableFunc(units, func(a, b unitRef) int {
			return cmp.Compare(0, a.price.Cmp(b.price))
		})
		if target.N < 1 || target.N > len(units) {
			return nil
		}
		return units[target.N-1:]
	default:
		return units
	}
}
