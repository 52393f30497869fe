package domain

import "github.com/shopspring/decimal"

// LineTotal returns unit price multiplied by quantity, rounded to two places.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// NewPricing builds a pricing summary from its components and derives the total.
func NewPricing(subtotal, tax, shipping, discount decimal.Decimal) Pricing {
	p := Pricing{
		Subtotal:     subtotal.Round(2),
		Tax:          tax.Round(2),
		ShippingCost: shipping.Round(2),
		Discount:     discount.Round(2),
	}
	p.Total = p.Subtotal.Add(p.Tax).Add(p.ShippingCost).Sub(p.Discount)
	return p
}

// Balanced reports whether total equals subtotal + tax + shipping - discount and no component is negative.
func (p Pricing) Balanced() bool {
	for _, v := range []decimal.Decimal{p.Subtotal, p.Tax, p.ShippingCost, p.Discount, p.Total} {
		if v.IsNegative() {
			return false
		}
	}
	expected := p.Subtotal.Add(p.Tax).Add(p.ShippingCost).Sub(p.Discount)
	return expected.Equal(p.Total)
}

// SumItems totals the line prices of the given items.
func SumItems(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}
