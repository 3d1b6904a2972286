package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BINLookupRequest is everything the issuer lookup is allowed to see. BIN is
// the first six digits of the card number, never more.
type BINLookupRequest struct {
	BIN      string          `json:"bin"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type BINInfo struct {
	Brand            CardBrand `json:"brand"`
	Bank             string    `json:"bank,omitempty"`
	Country          string    `json:"country,omitempty"`
	ThreeDSRequired  bool      `json:"threeDSRequired"`
	ThreeDSSupported bool      `json:"threeDSSupported"`
}

// ProcessorRequest is one charge sent to the payment processor.
type ProcessorRequest struct {
	InvoiceNumber    string
	Card             RawCardData
	Amount           decimal.Decimal
	Currency         string
	Description      string
	AuthenticationID string
}

type TransactionResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	AuthCode      string `json:"auth_code,omitempty"`
	Message       string `json:"message,omitempty"`
	IsDuplicate   bool   `json:"is_duplicate,omitempty"`
}

// LedgerEntry is the masked record of a completed charge.
type LedgerEntry struct {
	TransactionID        string          `json:"transactionId"`
	MaskedNumber         string          `json:"maskedNumber"`
	LastFour             string          `json:"lastFour"`
	Brand                CardBrand       `json:"brand"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Description          string          `json:"description,omitempty"`
	ThreeDSecure         bool            `json:"threeDSecure"`
	ThreeDSTransactionID string          `json:"threeDSTransactionId,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
}
