// Package payment composes tokenization, issuer lookup, 3-D Secure and the
// processor into a single authorize-and-charge call.
package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"voyage-payment-api/metrics"
	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/utils"
)

const binLength = 6

var (
	ErrThreeDSUnsupported = models.NewPaymentError(models.KindPolicy, models.ErrCode3DSUnsupported,
		"3-D Secure required but unsupported", nil)
	ErrTokenInUse = models.NewPaymentError(models.KindToken, models.ErrCodeInvalidToken,
		"Card token is already being used for another payment", nil)
	ErrDeclined = models.NewPaymentError(models.KindUpstream, models.ErrCodeUpstream,
		"Payment was declined", nil)
)

type ChargeRequest struct {
	CardToken        string
	Amount           decimal.Decimal
	Currency         string
	Description      string
	Require3DS       bool
	ThreeDSSessionID string
}

type Result struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Card          models.CardInfo
	Requires3DS   bool
}

type Config struct {
	Vault     CardVault
	Sessions  SessionVerifier
	BINLookup BINLookup
	Processor Processor
	Ledger    Ledger
	Audit     *security.AuditLogger
	Metrics   metrics.Recorder
	Now       func() time.Time
}

type Orchestrator struct {
	vault     CardVault
	sessions  SessionVerifier
	bins      BINLookup
	processor Processor
	ledger    Ledger
	audit     *security.AuditLogger
	metrics   metrics.Recorder
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Ledger == nil {
		cfg.Ledger = NopLedger{}
	}
	if cfg.Audit == nil {
		cfg.Audit = security.NewAuditLogger(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		vault:     cfg.Vault,
		sessions:  cfg.Sessions,
		bins:      cfg.BINLookup,
		processor: cfg.Processor,
		ledger:    cfg.Ledger,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		inflight:  make(map[string]struct{}),
	}
}

// AuthorizeAndCharge charges the card behind req.CardToken. On success the
// token is invalidated exactly once and cannot back another charge.
func (o *Orchestrator) AuthorizeAndCharge(ctx context.Context, req ChargeRequest) (*Result, error) {
	res, err := o.authorizeAndCharge(ctx, req)
	if err != nil {
		pe := models.AsPaymentError(err)
		o.metrics.PaymentOutcome(pe.Kind.String())
		details := map[string]any{
			"cardToken": req.CardToken,
			"amount":    req.Amount.String(),
			"errorCode": pe.Code,
			"error":     err,
			"cause":     pe.Err,
		}
		// only echo a currency that looks like one
		if currency, ok := utils.NormalizeCurrency(req.Currency); ok {
			details["currency"] = currency
		}
		o.audit.Error("payment failed", details)
		return nil, pe
	}
	o.metrics.PaymentOutcome("success")
	return res, nil
}

func (o *Orchestrator) authorizeAndCharge(ctx context.Context, req ChargeRequest) (*Result, error) {
	if !utils.ValidAmount(req.Amount) {
		return nil, models.NewValidationError(models.ErrCodeInvalidAmount, "Amount must be a positive value")
	}
	currency, ok := utils.NormalizeCurrency(req.Currency)
	if !ok {
		return nil, models.NewValidationError(models.ErrCodeInvalidCurrency, "Currency must be a 3-letter code")
	}
	if req.CardToken == "" {
		return nil, models.NewValidationError(models.ErrCodeInvalidToken, "Card token is required")
	}

	if !o.claim(req.CardToken) {
		return nil, ErrTokenInUse
	}
	defer o.release(req.CardToken)

	card, err := o.vault.Resolve(ctx, req.CardToken)
	if err != nil {
		return nil, err
	}
	meta, err := o.vault.Describe(ctx, req.CardToken)
	if err != nil {
		return nil, err
	}

	bin, err := o.bins.Lookup(ctx, models.BINLookupRequest{
		BIN:      card.Number[:binLength],
		Amount:   req.Amount,
		Currency: currency,
	})
	if err != nil {
		return nil, models.NewUpstreamError(err)
	}

	requires3DS := req.Require3DS || bin.ThreeDSRequired
	var invoice, threeDSTxn string
	if requires3DS {
		if !bin.ThreeDSSupported || o.sessions == nil {
			o.audit.Security("3ds required but unsupported", map[string]any{
				"cardToken": req.CardToken,
				"brand":     string(bin.Brand),
				"bank":      bin.Bank,
			})
			return nil, ErrThreeDSUnsupported
		}
		session, err := o.sessions.Verify(ctx, req.ThreeDSSessionID, req.CardToken, req.Amount, currency)
		if err != nil {
			return nil, err
		}
		invoice = session.OrderID
		threeDSTxn = session.TransactionID
	}

	resp, err := o.processor.Charge(ctx, models.ProcessorRequest{
		InvoiceNumber:    invoice,
		Card:             card,
		Amount:           req.Amount,
		Currency:         currency,
		Description:      req.Description,
		AuthenticationID: threeDSTxn,
	})
	if err != nil {
		return nil, models.NewUpstreamError(err)
	}
	if !resp.Success || resp.TransactionID == "" {
		return nil, models.NewPaymentError(ErrDeclined.Kind, ErrDeclined.Code, ErrDeclined.Message,
			errors.New(security.RedactPANs(resp.Message)))
	}

	// The charge went through; nothing below may turn it into a failure.
	if err := o.vault.Invalidate(ctx, req.CardToken); err != nil {
		o.audit.Error("failed to invalidate card token after charge", map[string]any{
			"cardToken": req.CardToken,
			"error":     err,
		})
	}
	if requires3DS {
		if err := o.sessions.Discard(ctx, req.ThreeDSSessionID); err != nil {
			o.audit.Warn("failed to discard 3ds session after charge", map[string]any{
				"sessionId": req.ThreeDSSessionID,
				"error":     err,
			})
		}
	}

	entry := models.LedgerEntry{
		TransactionID:        resp.TransactionID,
		MaskedNumber:         meta.MaskedNumber,
		LastFour:             meta.LastFour,
		Brand:                meta.Brand,
		Amount:               req.Amount,
		Currency:             currency,
		Description:          req.Description,
		ThreeDSecure:         requires3DS,
		ThreeDSTransactionID: threeDSTxn,
		CreatedAt:            o.now(),
	}
	if err := o.ledger.Record(ctx, entry); err != nil {
		o.audit.Warn("failed to record transaction", map[string]any{
			"transactionId": resp.TransactionID,
			"error":         err,
		})
	}

	o.audit.Payment("payment authorized", map[string]any{
		"transactionId": resp.TransactionID,
		"cardToken":     req.CardToken,
		"lastFour":      meta.LastFour,
		"brand":         string(meta.Brand),
		"amount":        utils.FormatAmount(req.Amount),
		"currency":      currency,
		"threeDSecure":  requires3DS,
		"duplicate":     resp.IsDuplicate,
	})

	return &Result{
		TransactionID: resp.TransactionID,
		Amount:        req.Amount,
		Currency:      currency,
		Card: models.CardInfo{
			MaskedNumber: meta.MaskedNumber,
			LastFour:     meta.LastFour,
			Brand:        meta.Brand,
		},
		Requires3DS: requires3DS,
	}, nil
}

// claim reserves token for one charge at a time.
func (o *Orchestrator) claim(token string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[token]; busy {
		return false
	}
	o.inflight[token] = struct{}{}
	return true
}

func (o *Orchestrator) release(token string) {
	o.mu.Lock()
	delete(o.inflight, token)
	o.mu.Unlock()
}
