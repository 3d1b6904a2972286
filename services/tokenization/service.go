// Package tokenization swaps raw card data for short-lived opaque tokens.
package tokenization

import (
	"context"
	"strings"
	"time"

	"voyage-payment-api/cache"
	"voyage-payment-api/metrics"
	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/utils"
)

const (
	DefaultTokenTTL = time.Hour
	TokenPrefix     = "tok_"
	maxHolderName   = 100
)

var ErrTokenNotFound = models.NewPaymentError(models.KindToken, models.ErrCodeInvalidToken,
	"Invalid or expired card token", nil)

// Record is what the store keeps per token. Metadata and card data live in
// one value so they are written and removed together.
type Record struct {
	Meta models.CardToken   `json:"meta"`
	Card models.RawCardData `json:"card"`
}

type Config struct {
	TTL     time.Duration
	Now     func() time.Time
	Audit   *security.AuditLogger
	Metrics metrics.Recorder
}

type Service struct {
	store   cache.Store[Record]
	ttl     time.Duration
	now     func() time.Time
	audit   *security.AuditLogger
	metrics metrics.Recorder
}

func NewService(store cache.Store[Record], cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Audit == nil {
		cfg.Audit = security.NewAuditLogger(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	return &Service{
		store:   store,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
	}
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Tokenize validates card and stores it under a fresh token. Expired tokens
// are swept first on every call; nothing is stored when validation fails.
func (s *Service) Tokenize(ctx context.Context, card models.RawCardData) (models.CardToken, error) {
	card.Number = security.NormalizeCardNumber(card.Number)
	card.HolderName = strings.TrimSpace(card.HolderName)
	card.ExpiryYear = security.NormalizeExpiryYear(card.ExpiryYear)

	if _, err := s.store.Sweep(ctx); err != nil {
		s.audit.Warn("token sweep failed", map[string]any{"error": err})
	}

	now := s.now()
	if err := s.validate(card, now); err != nil {
		s.metrics.TokenRejected(err.Code)
		s.audit.Security("card tokenization rejected", map[string]any{
			"reason": err.Code,
		})
		return models.CardToken{}, err
	}

	token, err := utils.NewOpaqueID(TokenPrefix, now)
	if err != nil {
		return models.CardToken{}, models.NewInternalError(err)
	}

	meta := models.CardToken{
		Token:        token,
		MaskedNumber: security.MaskedCardNumber(card.Number),
		LastFour:     security.LastFour(card.Number),
		Brand:        security.DetectBrand(card.Number),
		ExpiryMonth:  card.ExpiryMonth,
		ExpiryYear:   card.ExpiryYear,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	if err := s.store.Set(ctx, token, Record{Meta: meta, Card: card}, s.ttl); err != nil {
		return models.CardToken{}, models.NewInternalError(err)
	}

	s.metrics.TokenIssued(string(meta.Brand))
	s.audit.Payment("card tokenized", map[string]any{
		"token":    token,
		"brand":    string(meta.Brand),
		"lastFour": meta.LastFour,
	})
	return meta, nil
}

// Resolve returns the card behind token. An expired token and one that never
// existed look the same.
func (s *Service) Resolve(ctx context.Context, token string) (models.RawCardData, error) {
	rec, err := s.lookup(ctx, token)
	if err != nil {
		return models.RawCardData{}, err
	}
	return rec.Card, nil
}

// Describe returns only display-safe metadata.
func (s *Service) Describe(ctx context.Context, token string) (models.CardToken, error) {
	rec, err := s.lookup(ctx, token)
	if err != nil {
		return models.CardToken{}, err
	}
	return rec.Meta, nil
}

// Invalidate removes token immediately. Callers must invalidate a token once
// it has backed a successful charge.
func (s *Service) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.Delete(ctx, token); err != nil {
		return models.NewInternalError(err)
	}
	s.audit.Payment("card token invalidated", map[string]any{"token": token})
	return nil
}

func (s *Service) lookup(ctx context.Context, token string) (Record, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return Record{}, ErrTokenNotFound
	}
	rec, ok, err := s.store.Get(ctx, token)
	if err != nil {
		return Record{}, models.NewInternalError(err)
	}
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	// backends without lazy expiry of their own still must not return stale data
	if s.now().After(rec.Meta.ExpiresAt) {
		if err := s.store.Delete(ctx, token); err != nil {
			s.audit.Warn("failed to remove expired card token", map[string]any{
				"token": token,
				"error": err,
			})
		}
		return Record{}, ErrTokenNotFound
	}
	return rec, nil
}

func (s *Service) validate(card models.RawCardData, now time.Time) *models.PaymentError {
	if !security.ValidateCardNumber(card.Number) {
		return models.NewValidationError(models.ErrCodeInvalidCardNumber, "Invalid card number")
	}
	if !security.ValidateCVV(card.CVV, security.DetectBrand(card.Number)) {
		return models.NewValidationError(models.ErrCodeInvalidCVV, "Invalid security code")
	}
	if !security.ValidateExpiryDateAt(card.ExpiryMonth, card.ExpiryYear, now) {
		return models.NewValidationError(models.ErrCodeInvalidExpiry, "Invalid or expired expiry date")
	}
	if card.HolderName == "" || len(card.HolderName) > maxHolderName {
		return models.NewValidationError(models.ErrCodeValidation, "Cardholder name is required")
	}
	return nil
}
