package utils

import (
	"encoding/json"
	"net/http"

	"voyage-payment-api/models"
)

func SendErrorResponse(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, models.APIError{
		Success:   false,
		Error:     message,
		ErrorCode: code,
	})
}

// SendPaymentError renders err with the status its kind maps to. Only the
// client-safe message leaves the process.
func SendPaymentError(w http.ResponseWriter, err error) {
	pe := models.AsPaymentError(err)
	SendErrorResponse(w, pe.Kind.HTTPStatus(), pe.Code, pe.Message)
}

func SendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
