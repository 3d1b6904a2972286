package security

import (
	"regexp"
	"strings"
)

type MaskKind string

const (
	MaskCard  MaskKind = "card"
	MaskCVV   MaskKind = "cvv"
	MaskEmail MaskKind = "email"
	MaskPhone MaskKind = "phone"
	MaskToken MaskKind = "token"
)

// MaskSensitiveData redacts value while keeping its shape recognisable.
// Unknown kinds are fully starred.
func MaskSensitiveData(value string, kind MaskKind) string {
	if value == "" {
		return ""
	}
	switch kind {
	case MaskCard:
		return maskCard(value)
	case MaskCVV:
		return strings.Repeat("*", len(value))
	case MaskEmail:
		return maskEmail(value)
	case MaskPhone:
		return maskPhone(value)
	case MaskToken:
		return maskToken(value)
	default:
		return strings.Repeat("*", len(value))
	}
}

// MaskedCardNumber is the display form sent back to clients.
func MaskedCardNumber(number string) string {
	return maskCard(number)
}

func maskCard(value string) string {
	digits := NormalizeCardNumber(value)
	if len(digits) <= 8 {
		return strings.Repeat("*", len(digits))
	}
	return digits[:4] + strings.Repeat("*", len(digits)-8) + digits[len(digits)-4:]
}

func maskEmail(value string) string {
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return strings.Repeat("*", len(value))
	}
	local, domain := value[:at], value[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + domain
}

func maskPhone(value string) string {
	total := 0
	for i := 0; i < len(value); i++ {
		if value[i] >= '0' && value[i] <= '9' {
			total++
		}
	}

	var b strings.Builder
	b.Grow(len(value))
	seen := 0
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c >= '0' && c <= '9' {
			seen++
			if total-seen >= 4 {
				b.WriteByte('*')
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func maskToken(value string) string {
	if len(value) <= 12 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "****" + value[len(value)-4:]
}

var (
	digitRun   = regexp.MustCompile(`\d+(?:[ -]\d+)*`)
	digitGroup = regexp.MustCompile(`\d+`)
)

const (
	minPANDigits = 13
	maxPANDigits = 19
)

// RedactPANs replaces every Luhn-valid 13-19 digit span of free text. A span
// is made of whole digit groups, so a PAN followed by a CVV or an expiry is
// still found.
func RedactPANs(text string) string {
	if text == "" {
		return text
	}
	return digitRun.ReplaceAllStringFunc(text, redactRun)
}

// redactRun masks the longest valid span starting at each group, left to
// right, without overlaps.
func redactRun(run string) string {
	groups := digitGroup.FindAllStringIndex(run, -1)

	var b strings.Builder
	last := 0
	for i := 0; i < len(groups); {
		end, pan := -1, ""
		digits := 0
		for j := i; j < len(groups); j++ {
			digits += groups[j][1] - groups[j][0]
			if digits > maxPANDigits {
				break
			}
			if digits < minPANDigits {
				continue
			}
			candidate := stripSeparators(run[groups[i][0]:groups[j][1]])
			if luhnValid(candidate) {
				end, pan = j, candidate
			}
		}
		if end < 0 {
			i++
			continue
		}
		b.WriteString(run[last:groups[i][0]])
		b.WriteString(maskCard(pan))
		last = groups[end][1]
		i = end + 1
	}
	if last == 0 {
		return run
	}
	b.WriteString(run[last:])
	return b.String()
}

func stripSeparators(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}
