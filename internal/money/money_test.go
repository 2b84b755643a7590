package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"odelivery/terminal/internal/domain"
)

func TestParseLocalizedCurrencyStrings(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.234,56", "1234.56"},
		{"45,00", "45"},
		{"R$ 45,90", "45.9"},
		{"R$ 1.000,00", "1000"},
		{"0,50", "0.5"},
		{"12.90", "12.9"},
		{"abc", "0"},
		{"", "0"},
		{"-10,00", "0"},
		{"R$", "0"},
	}

	for _, tc := range cases {
		got := ParseLocalizedCurrency(tc.in)
		want := decimal.RequireFromString(tc.want)
		if !got.Equal(want) {
			t.Fatalf("ParseLocalizedCurrency(%q) = %s, want %s", tc.in, got, want)
		}
	}
}

func TestParseLocalizedCurrencyNumerics(t *testing.T) {
	if got := ParseLocalizedCurrency(10); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("int input: got %s", got)
	}
	if got := ParseLocalizedCurrency(float64(45.5)); !got.Equal(decimal.RequireFromString("45.5")) {
		t.Fatalf("float input: got %s", got)
	}
	if got := ParseLocalizedCurrency(json.Number("99.90")); !got.Equal(decimal.RequireFromString("99.9")) {
		t.Fatalf("json.Number input: got %s", got)
	}
	if got := ParseLocalizedCurrency(nil); !got.IsZero() {
		t.Fatalf("nil input: got %s", got)
	}
	if got := ParseLocalizedCurrency(float64(-3)); !got.IsZero() {
		t.Fatalf("negative input should clamp to zero, got %s", got)
	}
}

func TestInferPaymentMethod(t *testing.T) {
	cases := []struct {
		in   string
		want domain.PaymentMethod
	}{
		{"Pix: 45,00", domain.PaymentPix},
		{"PIX", domain.PaymentPix},
		{"Cartão de Crédito", domain.PaymentCreditCard},
		{"cartao de credito", domain.PaymentCreditCard},
		{"Credit card", domain.PaymentCreditCard},
		{"Cartão de Débito", domain.PaymentDebitCard},
		{"debito na entrega", domain.PaymentDebitCard},
		{"Dinheiro - troco para 60", domain.PaymentCash},
		{"cash", domain.PaymentCash},
		{"", domain.PaymentOther},
		{"voucher", domain.PaymentOther},
	}

	for _, tc := range cases {
		if got := InferPaymentMethod(tc.in); got != tc.want {
			t.Fatalf("InferPaymentMethod(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFormatBRL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234.56", "R$ 1.234,56"},
		{"45", "R$ 45,00"},
		{"0.5", "R$ 0,50"},
		{"1000000", "R$ 1.000.000,00"},
		{"0", "R$ 0,00"},
		{"-12.3", "-R$ 12,30"},
	}

	for _, tc := range cases {
		if got := FormatBRL(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Fatalf("FormatBRL(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
