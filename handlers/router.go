package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"voyage-payment-api/models"
	"voyage-payment-api/utils"
)

var errMethodNotAllowed = models.NewPaymentError(models.KindValidation, models.ErrCodeMethodNotAllowed,
	"Method not allowed", nil)

type RouterConfig struct {
	Payments *PaymentHandler
	Health   http.Handler
	Metrics  http.Handler
	// TokenizeLimit wraps the tokenize route, typically with a per-IP limiter.
	TokenizeLimit func(http.Handler) http.Handler
}

// MethodNotAllowed writes the fixed 405 body used by every payment route.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	utils.SendErrorResponse(w, http.StatusMethodNotAllowed, errMethodNotAllowed.Code, errMethodNotAllowed.Message)
}

func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(MethodNotAllowed)

	api := router.PathPrefix("/api").Subrouter()
	if cfg.Health != nil {
		api.Handle("/health", cfg.Health).Methods(http.MethodGet)
	}

	payments := api.PathPrefix("/payments").Subrouter()
	var tokenize http.Handler = http.HandlerFunc(cfg.Payments.Tokenize)
	if cfg.TokenizeLimit != nil {
		tokenize = cfg.TokenizeLimit(tokenize)
	}
	payments.Handle("/tokenize", tokenize).Methods(http.MethodPost)
	payments.HandleFunc("/3ds/initiate", cfg.Payments.InitiateThreeDS).Methods(http.MethodPost)
	payments.HandleFunc("/3ds/complete", cfg.Payments.CompleteThreeDS).Methods(http.MethodPost)
	payments.HandleFunc("/process", cfg.Payments.ProcessPayment).Methods(http.MethodPost)

	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}
	return router
}
