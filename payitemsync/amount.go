package payitemsync

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateAmount returns hours × payRate × deductionPercentage/100 rounded half-up to cents.
func CalculateAmount(hours, payRate decimal.Decimal, deductionPercentage float64) decimal.Decimal {
	pct := decimal.NewFromFloat(deductionPercentage)
	return hours.Mul(payRate).Mul(pct).Div(hundred).Round(2)
}
