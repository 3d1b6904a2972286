package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"voyage-payment-api/middleware"
	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/services/payment"
	"voyage-payment-api/services/threeds"
	"voyage-payment-api/utils"
)

const maxBodyBytes = 16 << 10

var errInvalidBody = models.NewValidationError(models.ErrCodeValidation, "Invalid request body")

type Tokenizer interface {
	Tokenize(ctx context.Context, card models.RawCardData) (models.CardToken, error)
	TTL() time.Duration
}

type Authenticator interface {
	Initiate(ctx context.Context, req threeds.InitiateRequest) (*threeds.Challenge, error)
	Complete(ctx context.Context, sessionID, challengeResponse string) (string, error)
}

type Charger interface {
	AuthorizeAndCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Result, error)
}

type PaymentHandler struct {
	tokens   Tokenizer
	threeDS  Authenticator
	payments Charger
	audit    *security.AuditLogger
}

func NewPaymentHandler(tokens Tokenizer, threeDS Authenticator, payments Charger, audit *security.AuditLogger) (*PaymentHandler, error) {
	if tokens == nil {
		return nil, errors.New("tokenization service is required")
	}
	if threeDS == nil {
		return nil, errors.New("3ds manager is required")
	}
	if payments == nil {
		return nil, errors.New("payment orchestrator is required")
	}
	if audit == nil {
		audit = security.NewAuditLogger(nil)
	}
	return &PaymentHandler{
		tokens:   tokens,
		threeDS:  threeDS,
		payments: payments,
		audit:    audit,
	}, nil
}

func (h *PaymentHandler) Tokenize(w http.ResponseWriter, r *http.Request) {
	var req models.TokenizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	meta, err := h.tokens.Tokenize(r.Context(), models.RawCardData{
		Number:      req.Number,
		ExpiryMonth: int(req.ExpiryMonth),
		ExpiryYear:  int(req.ExpiryYear),
		CVV:         req.CVV,
		HolderName:  req.Name,
	})
	if err != nil {
		h.fail(w, r, "tokenize", err)
		return
	}

	utils.SendJSON(w, http.StatusOK, models.TokenizeResponse{
		Success:   true,
		Token:     meta.Token,
		CardInfo:  meta.Info(),
		ExpiresIn: int(h.tokens.TTL().Seconds()),
	})
}

func (h *PaymentHandler) InitiateThreeDS(w http.ResponseWriter, r *http.Request) {
	var req models.InitiateThreeDSRequest
	if !h.decode(w, r, &req) {
		return
	}

	challenge, err := h.threeDS.Initiate(r.Context(), threeds.InitiateRequest{
		CardToken:   req.CardToken,
		Amount:      req.Amount,
		Currency:    req.Currency,
		OrderID:     req.OrderID,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, "3ds initiate", err)
		return
	}

	utils.SendJSON(w, http.StatusOK, models.InitiateThreeDSResponse{
		Success:   true,
		SessionID: challenge.SessionID,
		AcsURL:    challenge.AcsURL,
		PaReq:     challenge.ChallengeRequest,
		MD:        challenge.MerchantData,
	})
}

func (h *PaymentHandler) CompleteThreeDS(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteThreeDSRequest
	if !h.decode(w, r, &req) {
		return
	}

	transactionID, err := h.threeDS.Complete(r.Context(), req.SessionID, req.PaRes)
	if err != nil {
		h.fail(w, r, "3ds complete", err)
		return
	}

	utils.SendJSON(w, http.StatusOK, models.CompleteThreeDSResponse{
		Success:       true,
		TransactionID: transactionID,
	})
}

func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req models.ProcessPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.payments.AuthorizeAndCharge(r.Context(), payment.ChargeRequest{
		CardToken:        req.CardToken,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Description:      req.Description,
		Require3DS:       req.Requires3D,
		ThreeDSSessionID: req.ThreeDSSessionID,
	})
	if err != nil {
		h.fail(w, r, "process payment", err)
		return
	}

	utils.SendJSON(w, http.StatusOK, models.ProcessPaymentResponse{
		Success:       true,
		TransactionID: res.TransactionID,
		Amount:        res.Amount,
		Currency:      res.Currency,
		CardInfo:      res.Card,
		Requires3D:    res.Requires3DS,
	})
}

// decode reads a bounded JSON body into dst. On failure the response has
// already been written.
func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.audit.Warn("invalid request body", map[string]any{
			"path":      r.URL.Path,
			"requestId": middleware.RequestIDFromContext(r.Context()),
			"error":     err,
		})
		utils.SendPaymentError(w, errInvalidBody)
		return false
	}
	return true
}

func (h *PaymentHandler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	pe := models.AsPaymentError(err)
	if pe.Kind == models.KindInternal {
		h.audit.Error(operation+" failed", map[string]any{
			"requestId": middleware.RequestIDFromContext(r.Context()),
			"error":     err,
			"cause":     pe.Err,
		})
	}
	utils.SendPaymentError(w, pe)
}
