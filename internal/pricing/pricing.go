// Package pricing computes sale totals. It has no side effects; identical
// input always yields identical output.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidLine     = errors.New("invalid cart line")
	ErrInvalidDiscount = errors.New("invalid discount")
	ErrInvalidTaxRate  = errors.New("invalid tax rate")
)

// DefaultTaxRate is the Mexican IVA rate.
var DefaultTaxRate = decimal.RequireFromString("0.16")

// OneCent is the reconciliation tolerance between client and server totals.
var OneCent = decimal.New(1, -2)

type Line struct {
	Quantity  int
	UnitPrice decimal.Decimal
}

type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

type Calculator struct {
	taxRate decimal.Decimal
}

func NewCalculator(taxRate decimal.Decimal) (*Calculator, error) {
	if taxRate.IsNegative() || taxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTaxRate, taxRate)
	}
	return &Calculator{taxRate: taxRate}, nil
}

func (c *Calculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

func (c *Calculator) ComputeTotals(lines []Line) (Totals, error) {
	return c.Compute(lines, decimal.Zero)
}

// Compute sums the lines, subtracts the discount and applies tax to the
// discounted subtotal. Rounding to two places happens once on the summed
// subtotal and once on the tax, never per line.
func (c *Calculator) Compute(lines []Line, discount decimal.Decimal) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, ErrEmptyCart
	}

	sum := decimal.Zero
	for i, line := range lines {
		if line.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidLine, i+1)
		}
		if line.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("%w: line %d unit price must not be negative", ErrInvalidLine, i+1)
		}
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal := RoundMoney(sum)

	discount = RoundMoney(discount)
	if discount.IsNegative() || discount.GreaterThan(subtotal) {
		return Totals{}, fmt.Errorf("%w: %s exceeds subtotal %s", ErrInvalidDiscount, discount.StringFixed(2), subtotal.StringFixed(2))
	}

	taxable := subtotal.Sub(discount)
	tax := RoundMoney(taxable.Mul(c.taxRate))

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}, nil
}

// RoundMoney rounds half away from zero to two places, which is half-up for
// the non-negative amounts a sale carries.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Reconcile reports whether two amounts agree within tolerance.
func Reconcile(expected decimal.Decimal, got decimal.Decimal, tolerance decimal.Decimal) bool {
	return expected.Sub(got).Abs().LessThanOrEqual(tolerance)
}

// Allocate splits amount over weights in proportion, at two decimal places.
// The shares always sum to amount exactly; the last share takes the rounding
// remainder. A zero weight sum puts the whole amount on the last share.
func Allocate(amount decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	for i := range shares {
		shares[i] = decimal.Zero
	}
	if len(weights) == 0 {
		return shares
	}

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	last := len(weights) - 1
	if sum.IsZero() {
		shares[last] = amount
		return shares
	}

	allocated := decimal.Zero
	for i, w := range weights {
		if i == last {
			shares[i] = amount.Sub(allocated)
			break
		}
		share := amount.Mul(w).DivRound(sum, 8).Truncate(2)
		shares[i] = share
		allocated = allocated.Add(share)
	}
	return shares
}
