package payments

import "github.com/shopspring/decimal"

var minorUnitFactor = decimal.NewFromInt(100)

// ToMinorUnits converts a major unit amount into gateway minor units, rounding half away from zero to two places.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(minorUnitFactor).IntPart()
}

// FromMinorUnits converts gateway minor units back into a major unit amount.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(minorUnitFactor).Round(2)
}
