package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeCurrency upper-cases a currency code and reports whether it is
// three ASCII letters.
func NormalizeCurrency(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return code, false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return code, false
		}
	}
	return code, true
}

// ValidAmount requires a positive amount with at most two decimal places.
func ValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	return amount.Equal(amount.Round(2))
}

// FormatAmount renders amount the way the processor expects it ("12.50").
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
