// Package security holds the checks and redaction applied at every payment
// boundary: card validation, masking, rate limiting and the audit logger.
package security

import (
	"strings"
	"time"
	"unicode"

	"voyage-payment-api/models"
)

const maxExpiryYearsAhead = 10

// NormalizeCardNumber strips whitespace from a card number as typed.
func NormalizeCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, number)
}

// ValidateCardNumber accepts 13 to 19 digits (whitespace ignored) passing
// the Luhn checksum.
func ValidateCardNumber(number string) bool {
	digits := NormalizeCardNumber(number)
	if len(digits) < 13 || len(digits) > 19 || !isDigits(digits) {
		return false
	}
	return luhnValid(digits)
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidateCVV requires 4 digits for American Express and 3 for every other brand.
func ValidateCVV(cvv string, brand models.CardBrand) bool {
	if !isDigits(cvv) {
		return false
	}
	if brand == models.BrandAmericanExpress {
		return len(cvv) == 4
	}
	return len(cvv) == 3
}

// ValidateExpiryDate checks month/year against the current month.
func ValidateExpiryDate(month, year int) bool {
	return ValidateExpiryDateAt(month, year, time.Now())
}

// ValidateExpiryDateAt accepts a card that has not expired as of now's month
// and expires at most ten years out. Two-digit years mean 20YY.
func ValidateExpiryDateAt(month, year int, now time.Time) bool {
	if month < 1 || month > 12 {
		return false
	}
	year = NormalizeExpiryYear(year)
	if year <= 0 {
		return false
	}

	now = now.UTC()
	currentYear, currentMonth := now.Year(), int(now.Month())
	if year < currentYear || (year == currentYear && month < currentMonth) {
		return false
	}
	return year <= currentYear+maxExpiryYearsAhead
}

func NormalizeExpiryYear(year int) int {
	if year >= 0 && year < 100 {
		return 2000 + year
	}
	return year
}

// DetectBrand applies the leading-digit rules.
func DetectBrand(number string) models.CardBrand {
	digits := NormalizeCardNumber(number)
	switch {
	case strings.HasPrefix(digits, "4"):
		return models.BrandVisa
	case len(digits) >= 2 && digits[0] == '5' && digits[1] >= '1' && digits[1] <= '5':
		return models.BrandMasterCard
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return models.BrandAmericanExpress
	case strings.HasPrefix(digits, "6"):
		return models.BrandDiscover
	default:
		return models.BrandUnknown
	}
}

// LastFour returns the final four digits of a normalized card number.
func LastFour(number string) string {
	digits := NormalizeCardNumber(number)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
