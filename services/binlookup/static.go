package binlookup

import (
	"context"

	"github.com/shopspring/decimal"

	"voyage-payment-api/models"
	"voyage-payment-api/security"
)

// StaticLookup answers from the leading-digit brand rules when no lookup
// service is configured. RequireAbove, when positive, mandates 3-D Secure
// for amounts strictly greater than it.
type StaticLookup struct {
	ThreeDSSupported bool
	RequireAbove     decimal.Decimal
}

func (s StaticLookup) Lookup(_ context.Context, req models.BINLookupRequest) (models.BINInfo, error) {
	return models.BINInfo{
		Brand:            security.DetectBrand(req.BIN),
		ThreeDSRequired:  s.RequireAbove.IsPositive() && req.Amount.GreaterThan(s.RequireAbove),
		ThreeDSSupported: s.ThreeDSSupported,
	}, nil
}
