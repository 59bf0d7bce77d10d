package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSymbolConstraintsValidate(t *testing.T) {
	c := SymbolConstraints{
		TickSize:    dec("0.01"),
		StepSize:    dec("0.001"),
		MinQty:      dec("0.001"),
		MaxQty:      dec("10"),
		MinNotional: dec("5"),
	}
	if err := c.Validate(dec("100.01"), dec("0.1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Validate(dec("100.015"), dec("0.002")); err == nil {
		t.Fatalf("expected tick size error")
	}
	if err := c.Validate(dec("100.01"), dec("0.0005")); err == nil {
		t.Fatalf("expected qty error")
	}
	if err := c.Validate(dec("100.01"), dec("11")); err == nil {
		t.Fatalf("expected max qty error")
	}
	if err := c.Validate(dec("10"), dec("0.2")); err == nil {
		t.Fatalf("expected notional error")
	}
}

func TestSymbolConstraintsRounding(t *testing.T) {
	c := SymbolConstraints{TickSize: dec("0.05"), StepSize: dec("0.001")}

	cases := []struct{ in, want string }{
		{"100.02", "100"},
		{"100.03", "100.05"},
		{"100.075", "100.1"},
	}
	for _, tc := range cases {
		if got := c.RoundPrice(dec(tc.in)); !got.Equal(dec(tc.want)) {
			t.Fatalf("RoundPrice(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
	if got := c.RoundAmount(dec("1.23456")); !got.Equal(dec("1.234")) {
		t.Fatalf("RoundAmount floors to step, got %s", got)
	}

	var none SymbolConstraints
	if got := none.RoundPrice(dec("1.2345")); !got.Equal(dec("1.2345")) {
		t.Fatalf("zero tick leaves price untouched, got %s", got)
	}
}
