package money

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"odelivery/terminal/internal/domain"
)

// ParseLocalizedCurrency converts a monetary wire value into a decimal.
// Numeric values pass through as-is; strings follow the Brazilian convention
// ("1.234,56"): thousands dots are stripped and the decimal comma converted
// before parsing. The function is total: any unparseable or negative input
// maps to zero, never an error.
func ParseLocalizedCurrency(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return clampNonNegative(val)
	case float64:
		return clampNonNegative(decimal.NewFromFloat(val))
	case float32:
		return clampNonNegative(decimal.NewFromFloat32(val))
	case int:
		return clampNonNegative(decimal.NewFromInt(int64(val)))
	case int64:
		return clampNonNegative(decimal.NewFromInt(val))
	case json.Number:
		return parseCurrencyString(val.String())
	case string:
		return parseCurrencyString(val)
	default:
		return decimal.Zero
	}
}

func parseCurrencyString(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimPrefix(s, "r$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero
	}

	// Plain numeric strings ("45.90", json numbers) parse directly; anything
	// containing a comma is treated as locale-formatted.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	parsed, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return clampNonNegative(parsed)
}

func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// paymentKeywords maps free-text fragments to canonical payment methods.
// Matched in declaration order, first hit wins.
var paymentKeywords = []struct {
	fragment string
	method   domain.PaymentMethod
}{
	{"pix", domain.PaymentPix},
	{"crédito", domain.PaymentCreditCard},
	{"credito", domain.PaymentCreditCard},
	{"credit", domain.PaymentCreditCard},
	{"débito", domain.PaymentDebitCard},
	{"debito", domain.PaymentDebitCard},
	{"debit", domain.PaymentDebitCard},
	{"dinheiro", domain.PaymentCash},
	{"cash", domain.PaymentCash},
}

// InferPaymentMethod maps a free-text payment summary ("Pix: 45,00",
// "Cartão de Crédito") to the canonical enum. Deterministic and total;
// unmatched text yields PaymentOther.
func InferPaymentMethod(freeText string) domain.PaymentMethod {
	lowered := strings.ToLower(freeText)
	for _, kw := range paymentKeywords {
		if strings.Contains(lowered, kw.fragment) {
			return kw.method
		}
	}
	return domain.PaymentOther
}

// FormatBRL renders a decimal as "R$ 1.234,56" with a comma decimal
// separator and dot thousands grouping. Always two decimal places.
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(2)

	intPart := fixed[:len(fixed)-3]
	fracPart := fixed[len(fixed)-2:]

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	out := "R$ " + grouped.String() + "," + fracPart
	if neg {
		out = "-" + out
	}
	return out
}
