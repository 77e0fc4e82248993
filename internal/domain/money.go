package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	maxMoney = decimal.NewFromInt(math.MaxInt64)
	minMoney = decimal.NewFromInt(math.MinInt64)
)

// Money is an amount in minor currency units (centavos).
// On the wire it is a plain decimal number with two places, e.g. 232.00.
type Money int64

func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Round(2).Shift(2).IntPart())
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid money amount %q", raw)
	}
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(maxMoney) || cents.LessThan(minMoney) {
		return fmt.Errorf("money amount %q is out of range", raw)
	}
	*m = Money(cents.IntPart())
	return nil
}
