// Package threeds runs the 3-D Secure challenge handshake for a card token.
package threeds

import (
	"time"

	"github.com/shopspring/decimal"

	"voyage-payment-api/models"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Session references its card only through CardToken; it never holds card data.
type Session struct {
	SessionID        string          `json:"sessionId"`
	CardToken        string          `json:"cardToken"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	OrderID          string          `json:"orderId,omitempty"`
	Description      string          `json:"description,omitempty"`
	AcsURL           string          `json:"acsUrl"`
	ChallengeRequest string          `json:"challengeRequest"`
	MerchantData     string          `json:"merchantData"`
	Status           Status          `json:"status"`
	TransactionID    string          `json:"transactionId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	ExpiresAt        time.Time       `json:"expiresAt"`
	CompletedAt      time.Time       `json:"completedAt,omitempty"`
}

type InitiateRequest struct {
	CardToken   string
	Amount      decimal.Decimal
	Currency    string
	OrderID     string
	Description string
}

// Challenge is what the browser needs to hand the cardholder to the ACS.
type Challenge struct {
	SessionID        string
	AcsURL           string
	ChallengeRequest string
	MerchantData     string
	ExpiresAt        time.Time
}

// challengePayload is the PAReq body, base64-encoded JSON.
type challengePayload struct {
	MerchantName string `json:"merchantName"`
	CardToken    string `json:"cardToken"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	OrderID      string `json:"orderId,omitempty"`
	Description  string `json:"description,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// ChallengeResponse is the PARes body the ACS posts back. TransStatus "Y"
// means the cardholder authenticated.
type ChallengeResponse struct {
	TransStatus string `json:"transStatus"`
	MD          string `json:"md,omitempty"`
}

var (
	ErrSessionNotFound = models.NewPaymentError(models.KindSession, models.ErrCodeInvalidSession,
		"Invalid 3-D Secure session", nil)
	ErrSessionExpired = models.NewPaymentError(models.KindSession, models.ErrCodeSessionExpired,
		"3-D Secure session expired", nil)
	ErrAlreadyProcessed = models.NewPaymentError(models.KindSession, models.ErrCodeSessionProcessed,
		"3-D Secure session already processed", nil)
	ErrAuthenticationFailed = models.NewPaymentError(models.KindAuthentication, models.ErrCodeAuthenticationFailed,
		"3-D Secure authentication failed", nil)
	ErrAuthenticationRequired = models.NewPaymentError(models.KindAuthentication, models.ErrCodeAuthenticationRequired,
		"3-D Secure authentication required", nil)
)
