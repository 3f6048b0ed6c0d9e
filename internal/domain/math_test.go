package domain

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSafeParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid integer", "100", "100"},
		{"valid decimal", "3.14", "3.14"},
		{"zero", "0", "0"},
		{"negative", "-5.5", "-5.5"},
		{"empty string", "", "0"},
		{"invalid string", "abc", "0"},
		{"whitespace", "  ", "0"},
		{"padded", " 0.00001234 ", "0.00001234"},
		{"large number", "999999999999.1234567", "999999999999.1234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeParse(tt.input)
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("SafeParse(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestFromFloat(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  string
	}{
		{"price", 59777.5, "59777.5"},
		{"negative change", -1.25, "-1.25"},
		{"nan", math.NaN(), "0"},
		{"inf", math.Inf(1), "0"},
		{"neg inf", math.Inf(-1), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromFloat(tt.input)
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("FromFloat(%v) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestNonNegative(t *testing.T) {
	if got := NonNegative(decimal.NewFromInt(-3)); !got.IsZero() {
		t.Errorf("NonNegative(-3) = %s, want 0", got)
	}
	if got := NonNegative(decimal.NewFromInt(7)); !got.Equal(decimal.NewFromInt(7)) {
		t.Errorf("NonNegative(7) = %s, want 7", got)
	}
}
