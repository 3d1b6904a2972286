package models

import "time"

type CardBrand string

const (
	BrandVisa            CardBrand = "Visa"
	BrandMasterCard      CardBrand = "MasterCard"
	BrandAmericanExpress CardBrand = "AmericanExpress"
	BrandDiscover        CardBrand = "Discover"
	BrandUnknown         CardBrand = "Unknown"
)

// RawCardData is the cardholder input. It only ever lives inside the
// tokenization store and the processor request.
type RawCardData struct {
	Number      string `json:"number"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holderName"`
}

// String keeps card data out of %v and %+v output.
func (RawCardData) String() string {
	return "RawCardData{redacted}"
}

func (c RawCardData) GoString() string {
	return c.String()
}

// CardToken is the display-safe side of a tokenized card.
type CardToken struct {
	Token        string    `json:"token"`
	MaskedNumber string    `json:"maskedNumber"`
	LastFour     string    `json:"lastFour"`
	Brand        CardBrand `json:"brand"`
	ExpiryMonth  int       `json:"expiryMonth"`
	ExpiryYear   int       `json:"expiryYear"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (t CardToken) Info() CardInfo {
	return CardInfo{
		MaskedNumber: t.MaskedNumber,
		LastFour:     t.LastFour,
		Brand:        t.Brand,
		ExpiryMonth:  t.ExpiryMonth,
		ExpiryYear:   t.ExpiryYear,
	}
}

type CardInfo struct {
	MaskedNumber string    `json:"maskedNumber"`
	LastFour     string    `json:"lastFour"`
	Brand        CardBrand `json:"brand"`
	ExpiryMonth  int       `json:"expiryMonth,omitempty"`
	ExpiryYear   int       `json:"expiryYear,omitempty"`
}
