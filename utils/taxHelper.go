package utils

import (
	"github.com/shopspring/decimal"
)

var decimalOneHundred = decimal.NewFromInt(100)

// LineTaxBreakup is the per-line result of the offline GST computation.
// Igst stays zero on the offline path: interstate splitting is handled by the
// server once the sale syncs.
type LineTaxBreakup struct {
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Cgst        decimal.Decimal `json:"cgst"`
	Sgst        decimal.Decimal `json:"sgst"`
	Igst        decimal.Decimal `json:"igst"`
	TotalTax    decimal.Decimal `json:"total_tax"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CalculateGST computes the tax breakup for a line amount.
//
// Tax-inclusive: taxable = amount / (1 + rate/100), tax = amount - taxable.
// Tax-exclusive: taxable = amount, tax = amount * rate / 100.
// The domestic rate is split into two equal halves (CGST + SGST).
func CalculateGST(amount decimal.Decimal, taxRate decimal.Decimal, isTaxInclusive bool) LineTaxBreakup {
	if taxRate.IsZero() {
		return LineTaxBreakup{
			BaseAmount:  amount.Round(4),
			TotalAmount: amount.Round(4),
		}
	}

	var taxable, totalTax decimal.Decimal
	if isTaxInclusive {
		taxable = amount.Mul(decimalOneHundred).DivRound(taxRate.Add(decimalOneHundred), 4)
		totalTax = amount.Sub(taxable)
	} else {
		taxable = amount
		totalTax = amount.Mul(taxRate).DivRound(decimalOneHundred, 4)
	}

	half := totalTax.DivRound(decimal.NewFromInt(2), 4)

	return LineTaxBreakup{
		BaseAmount:  taxable.Round(4),
		Cgst:        half,
		Sgst:        totalTax.Sub(half),
		Igst:        decimal.Zero,
		TotalTax:    totalTax.Round(4),
		TotalAmount: taxable.Add(totalTax).Round(4),
	}
}

func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, discountType string) decimal.Decimal {
	if !discount.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	if discountType == "P" {
		return subTotal.Mul(discount).DivRound(decimalOneHundred, 4)
	}
	return discount
}
