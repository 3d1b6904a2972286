package models

import "github.com/shopspring/decimal"

type APIError struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
}

type TokenizeRequest struct {
	Number      string      `json:"number"`
	ExpiryMonth FlexibleInt `json:"expiryMonth"`
	ExpiryYear  FlexibleInt `json:"expiryYear"`
	CVV         string      `json:"cvv"`
	Name        string      `json:"name"`
}

type TokenizeResponse struct {
	Success   bool     `json:"success"`
	Token     string   `json:"token"`
	CardInfo  CardInfo `json:"cardInfo"`
	ExpiresIn int      `json:"expiresIn"`
}

type InitiateThreeDSRequest struct {
	CardToken   string          `json:"cardToken"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	OrderID     string          `json:"orderId,omitempty"`
	Description string          `json:"description,omitempty"`
}

type InitiateThreeDSResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	AcsURL    string `json:"acsUrl"`
	PaReq     string `json:"pareq"`
	MD        string `json:"md"`
}

type CompleteThreeDSRequest struct {
	SessionID string `json:"sessionId"`
	PaRes     string `json:"pares"`
}

type CompleteThreeDSResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
}

type ProcessPaymentRequest struct {
	CardToken        string          `json:"cardToken"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description,omitempty"`
	Requires3D       bool            `json:"requires3D,omitempty"`
	ThreeDSSessionID string          `json:"threeDSSessionId,omitempty"`
}

type ProcessPaymentResponse struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CardInfo      CardInfo        `json:"cardInfo"`
	Requires3D    bool            `json:"requires3D"`
}
