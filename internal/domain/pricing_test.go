package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewPricingDerivesTotal(t *testing.T) {
	p := NewPricing(decimal.RequireFromString("200"), decimal.RequireFromString("18.5"), decimal.RequireFromString("40"), decimal.RequireFromString("10.25"))
	if !p.Total.Equal(decimal.RequireFromString("248.25")) {
		t.Fatalf("expected total 248.25, got %s", p.Total)
	}
	if !p.Balanced() {
		t.Fatalf("expected pricing to be balanced")
	}
}

func TestPricingBalancedRejectsMismatch(t *testing.T) {
	p := NewPricing(decimal.NewFromInt(100), decimal.Zero, decimal.Zero, decimal.Zero)
	p.Total = decimal.NewFromInt(99)
	if p.Balanced() {
		t.Fatalf("expected mismatched total to be rejected")
	}

	negative := NewPricing(decimal.NewFromInt(10), decimal.Zero, decimal.Zero, decimal.NewFromInt(20))
	if negative.Balanced() {
		t.Fatalf("expected negative total to be rejected")
	}
}

func TestLineTotal(t *testing.T) {
	cases := []struct {
		price string
		qty   int
		want  string
	}{
		{"100", 2, "200"},
		{"99.99", 3, "299.97"},
		{"0.335", 1, "0.34"},
	}
	for _, tc := range cases {
		got := LineTotal(decimal.RequireFromString(tc.price), tc.qty)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("LineTotal(%s, %d) = %s, want %s", tc.price, tc.qty, got, tc.want)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusPending:    false,
		OrderStatusConfirmed:  false,
		OrderStatusProcessing: false,
		OrderStatusCompleted:  true,
		OrderStatusCancelled:  true,
		OrderStatusRefunded:   true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}
