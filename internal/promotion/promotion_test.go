package promotion

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/allocation"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func cartOf(t *testing.T, lines ...domain.CartLine) *domain.Cart {
	t.Helper()
	return &domain.Cart{TerminalID: "T1", Lines: lines}
}

func line(t *testing.T, id string, price string, qty int) domain.CartLine {
	t.Helper()
	l := allocation.NewLine("ln-"+id, domain.Product{ID: id, ListPrice: d(price)})
	require.NoError(t, allocation.Resize(&l, qty))
	return l
}

func discounts(cart *domain.Cart) [][]string {
	out := make([][]string, len(cart.Lines))
	for i, l := range cart.Lines {
		for _, pct := range l.UnitDiscountPercent {
			out[i] = append(out[i], pct.StringFixed(4))
		}
	}
	return out
}

func TestParse(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{
			src:  "WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 50, CHEAPEST)",
			want: "WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 50, CHEAPEST)",
		},
		{
			src:  "where count(*)>=2 and subtotal > 100 then apply_discount(fixed, 5.5, all)",
			want: "WHERE COUNT(*) >= 2 AND SUBTOTAL > 100 THEN APPLY_DISCOUNT(FIXED, 5.5, ALL)",
		},
		{
			src:  "WHERE COUNT(PRODUCT = 'SOCKS-3PK') >= 2 THEN APPLY_DISCOUNT(PERCENTAGE, 30, FROM_NTH(2))",
			want: "WHERE COUNT(PRODUCT = 'SOCKS-3PK') >= 2 THEN APPLY_DISCOUNT(PERCENTAGE, 30, FROM_NTH(2))",
		},
	}
	for _, tt := range tests {
		rule, err := Parse(tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, rule.String())
	}
}

func TestParseRejectsMalformedExpressions(t *testing.T) {
	for _, src := range []string{
		"",
		"COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 50, CHEAPEST)",
		"WHERE COUNT(*) >= THEN APPLY_DISCOUNT(PERCENTAGE, 50, CHEAPEST)",
		"WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 150, CHEAPEST)",
		"WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(BOGUS, 10, CHEAPEST)",
		"WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 10, FROM_NTH(0))",
		"WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 10, FROM_NTH(18446744073709551616))",
		"WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 10, FROM_NTH(2147483648))",
		"WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 10, CHEAPEST) extra",
		"WHERE COUNT(PRODUCT = 'X) >= 1 THEN APPLY_DISCOUNT(PERCENTAGE, 10, ALL)",
		"WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 10, CHEAPEST); DROP",
	} {
		_, err := Parse(src)
		require.Error(t, err, src)
		var syntaxErr *SyntaxError
		assert.True(t, errors.As(err, &syntaxErr), src)
		assert.ErrorIs(t, err, store.ErrInvalidTransaction)
	}
}

func TestEvaluateCheapestUnit(t *testing.T) {
	rule, err := Parse("WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 100, CHEAPEST)")
	require.NoError(t, err)
	cart := cartOf(t, line(t, "A", "20.00", 2), line(t, "B", "9.90", 1))

	applied, err := Evaluate(cart, rule)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.True(t, cart.Lines[0].RowDiscountPercent.IsZero())
	assert.True(t, cart.Lines[1].UnitDiscountPercent[0].Equal(d("100")))
	assert.True(t, cart.Lines[1].RowTotal.IsZero())
}

func TestEvaluateConditionFailsResetsDiscounts(t *testing.T) {
	rule, err := Parse("WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 100, CHEAPEST)")
	require.NoError(t, err)
	cart := cartOf(t, line(t, "A", "20.00", 2))
	require.NoError(t, allocation.ApplyRowDiscount(&cart.Lines[0], d("15")))

	applied, err := Evaluate(cart, rule)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.True(t, cart.Lines[0].RowDiscountPercent.IsZero())
	assert.Equal(t, "40.00", money.Round2(cart.Lines[0].RowTotal).StringFixed(2))
}

func TestEvaluateIsIdempotent(t *testing.T) {
	for _, src := range []string{
		"WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 50, CHEAPEST)",
		"WHERE SUBTOTAL >= 10 THEN APPLY_DISCOUNT(PERCENTAGE, 10, ALL)",
		"WHERE COUNT(*) >= 2 THEN APPLY_DISCOUNT(FIXED, 2.5, FROM_NTH(2))",
	} {
		rule, err := Parse(src)
		require.NoError(t, err)
		cart := cartOf(t, line(t, "A", "20.00", 2), line(t, "B", "9.90", 3))

		_, err = Evaluate(cart, rule)
		require.NoError(t, err)
		once := discounts(cart)

		_, err = Evaluate(cart, rule)
		require.NoError(t, err)
		assert.Equal(t, once, discounts(cart), src)
	}
}

func TestEvaluateFromNthDiscountsCheaperUnits(t *testing.T) {
	rule, err := Parse("WHERE COUNT(*) >= 3 THEN APPLY_DISCOUNT(PERCENTAGE, 50, FROM_NTH(3))")
	require.NoError(t, err)
	cart := cartOf(t, line(t, "A", "10.00", 2), line(t, "B", "30.00", 2))

	_, err = Evaluate(cart, rule)
	require.NoError(t, err)

	assert.True(t, cart.Lines[1].RowDiscountPercent.IsZero())
	assert.Equal(t, []string{"50.0000", "50.0000"}, discounts(cart)[0])
}

func TestEvaluateFixedAmount(t *testing.T) {
	rule, err := Parse("WHERE COUNT(PRODUCT = 'A') >= 1 THEN APPLY_DISCOUNT(FIXED, 5, ALL)")
	require.NoError(t, err)
	cart := cartOf(t, line(t, "A", "20.00", 1), line(t, "B", "4.00", 1))

	_, err = Evaluate(cart, rule)
	require.NoError(t, err)

	assert.Equal(t, "15.00", money.Round2(cart.Lines[0].RowTotal).StringFixed(2))
	assert.True(t, cart.Lines[1].RowTotal.IsZero())
}

func TestEvaluateLeavesReservationLinesAlone(t *testing.T) {
	rule, err := Parse("WHERE COUNT(*) >= 1 THEN APPLY_DISCOUNT(PERCENTAGE, 100, CHEAPEST)")
	require.NoError(t, err)
	reserved := line(t, "R", "1.00", 1)
	require.NoError(t, allocation.ApplyRowDiscount(&reserved, d("10")))
	reserved.IsFromReservation = true
	cart := cartOf(t, reserved, line(t, "A", "5.00", 1))

	_, err = Evaluate(cart, rule)
	require.NoError(t, err)

	assert.True(t, cart.Lines[0].RowDiscountPercent.Equal(d("10")))
	assert.True(t, cart.Lines[1].RowTotal.IsZero())
}

func TestEvaluateIgnoresOutOfRangePosition(t *testing.T) {
	cart := cartOf(t, line(t, "A", "20.00", 2))
	rule := &Rule{
		Condition: Comparison{Metric: CountAll{}, Op: OpGTE, Value: d("1")},
		Action:    Action{Kind: DiscountPercentage, Value: d("10"), Target: Target{Kind: TargetFromNth, N: -1}},
	}

	applied, err := Evaluate(cart, rule)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.True(t, cart.Lines[0].RowDiscountPercent.IsZero())
}
