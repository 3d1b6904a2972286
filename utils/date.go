package utils

import (
	"fmt"
	"time"
)

// ProcessorExpiry formats a card expiry as YYYY-MM.
func ProcessorExpiry(month, year int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// FormatTimestamp is the RFC 3339 UTC form used in challenge payloads.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
