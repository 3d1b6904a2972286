package models

import (
	"errors"
	"net/http"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindToken
	KindSession
	KindAuthentication
	KindPolicy
	KindRateLimit
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindToken:
		return "token"
	case KindSession:
		return "session"
	case KindAuthentication:
		return "authentication"
	case KindPolicy:
		return "policy"
	case KindRateLimit:
		return "rate_limit"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation, KindToken, KindSession, KindAuthentication, KindPolicy:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeInvalidCardNumber      = "INVALID_CARD_NUMBER"
	ErrCodeInvalidCVV             = "INVALID_CVV"
	ErrCodeInvalidExpiry          = "INVALID_EXPIRY"
	ErrCodeInvalidAmount          = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency        = "INVALID_CURRENCY"
	ErrCodeInvalidToken           = "INVALID_TOKEN"
	ErrCodeInvalidSession         = "INVALID_SESSION"
	ErrCodeSessionExpired         = "SESSION_EXPIRED"
	ErrCodeSessionProcessed       = "SESSION_ALREADY_PROCESSED"
	ErrCodeAuthenticationFailed   = "AUTHENTICATION_FAILED"
	ErrCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrCode3DSUnsupported         = "3DS_UNSUPPORTED"
	ErrCodeRateLimited            = "RATE_LIMIT_EXCEEDED"
	ErrCodeUpstream               = "PAYMENT_PROVIDER_ERROR"
	ErrCodeInternal               = "INTERNAL_ERROR"
	ErrCodeMethodNotAllowed       = "METHOD_NOT_ALLOWED"
)

// PaymentError is what every payment component returns to its caller.
// Message is client-safe; Err carries the cause for server-side logs only.
type PaymentError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func NewPaymentError(kind ErrorKind, code, message string, cause error) *PaymentError {
	return &PaymentError{Kind: kind, Code: code, Message: message, Err: cause}
}

func NewValidationError(code, message string) *PaymentError {
	return &PaymentError{Kind: KindValidation, Code: code, Message: message}
}

func NewUpstreamError(cause error) *PaymentError {
	return &PaymentError{
		Kind:    KindUpstream,
		Code:    ErrCodeUpstream,
		Message: "Payment could not be processed. Please try again later.",
		Err:     cause,
	}
}

func NewInternalError(cause error) *PaymentError {
	return &PaymentError{
		Kind:    KindInternal,
		Code:    ErrCodeInternal,
		Message: "Internal server error",
		Err:     cause,
	}
}

// AsPaymentError unwraps err into a PaymentError, treating anything else as
// an internal failure.
func AsPaymentError(err error) *PaymentError {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe
	}
	return NewInternalError(err)
}
