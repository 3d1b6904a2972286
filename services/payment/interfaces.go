package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"voyage-payment-api/models"
	"voyage-payment-api/services/threeds"
)

// CardVault is the part of the tokenization service a charge needs.
type CardVault interface {
	Resolve(ctx context.Context, token string) (models.RawCardData, error)
	Describe(ctx context.Context, token string) (models.CardToken, error)
	Invalidate(ctx context.Context, token string) error
}

// SessionVerifier confirms a completed 3-D Secure session backs a charge.
type SessionVerifier interface {
	Verify(ctx context.Context, sessionID, cardToken string, amount decimal.Decimal, currency string) (threeds.Session, error)
	Discard(ctx context.Context, sessionID string) error
}

type BINLookup interface {
	Lookup(ctx context.Context, req models.BINLookupRequest) (models.BINInfo, error)
}

type Processor interface {
	Charge(ctx context.Context, req models.ProcessorRequest) (*models.TransactionResponse, error)
}

// Ledger records completed charges. Implementations get masked data only.
type Ledger interface {
	Record(ctx context.Context, entry models.LedgerEntry) error
}

// NopLedger drops every entry.
type NopLedger struct{}

func (NopLedger) Record(context.Context, models.LedgerEntry) error { return nil }
