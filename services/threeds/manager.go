package threeds

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"voyage-payment-api/cache"
	"voyage-payment-api/metrics"
	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/utils"
)

const (
	DefaultSessionTTL   = 10 * time.Minute
	DefaultAcsURL       = "https://acs.sandbox.voyage.test/challenge"
	DefaultMerchantName = "Voyage Travel"
	SessionPrefix       = "3ds_"
)

// TokenDescriber is the slice of the tokenization service the manager needs.
type TokenDescriber interface {
	Describe(ctx context.Context, token string) (models.CardToken, error)
}

type Config struct {
	SessionTTL time.Duration
	// Retention keeps terminal and expired sessions readable after their
	// TTL so a late completion reports "expired" rather than "invalid".
	Retention    time.Duration
	AcsURL       string
	MerchantName string
	Now          func() time.Time
	Audit        *security.AuditLogger
	Metrics      metrics.Recorder
}

type Manager struct {
	store        cache.Store[Session]
	tokens       TokenDescriber
	ttl          time.Duration
	retention    time.Duration
	acsURL       string
	merchantName string
	now          func() time.Time
	audit        *security.AuditLogger
	metrics      metrics.Recorder

	// serializes read-modify-write on sessions
	mu sync.Mutex
}

func NewManager(store cache.Store[Session], tokens TokenDescriber, cfg Config) *Manager {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = cfg.SessionTTL
	}
	if cfg.AcsURL == "" {
		cfg.AcsURL = DefaultAcsURL
	}
	if cfg.MerchantName == "" {
		cfg.MerchantName = DefaultMerchantName
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
	return &Manager{
		store:        store,
		tokens:       tokens,
		ttl:          cfg.SessionTTL,
		retention:    cfg.Retention,
		acsURL:       cfg.AcsURL,
		merchantName: cfg.MerchantName,
		now:          cfg.Now,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
	}
}

// Initiate opens a pending session for a live card token.
func (m *Manager) Initiate(ctx context.Context, req InitiateRequest) (*Challenge, error) {
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
	if _, err := m.tokens.Describe(ctx, req.CardToken); err != nil {
		m.audit.Security("3ds initiate with unusable token", map[string]any{
			"cardToken": req.CardToken,
			"error":     err,
		})
		return nil, err
	}

	if _, err := m.store.Sweep(ctx); err != nil {
		m.audit.Warn("session sweep failed", map[string]any{"error": err})
	}

	now := m.now()
	sessionID, err := utils.NewOpaqueID(SessionPrefix, now)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	pareq, err := json.Marshal(challengePayload{
		MerchantName: m.merchantName,
		CardToken:    security.MaskSensitiveData(req.CardToken, security.MaskToken),
		Amount:       utils.FormatAmount(req.Amount),
		Currency:     currency,
		OrderID:      req.OrderID,
		Description:  req.Description,
		Timestamp:    utils.FormatTimestamp(now),
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	session := Session{
		SessionID:        sessionID,
		CardToken:        req.CardToken,
		Amount:           req.Amount,
		Currency:         currency,
		OrderID:          req.OrderID,
		Description:      req.Description,
		AcsURL:           m.acsURL,
		ChallengeRequest: base64.StdEncoding.EncodeToString(pareq),
		MerchantData:     utils.EncodeString(sessionID),
		Status:           StatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(m.ttl),
	}
	if err := m.save(ctx, session, now); err != nil {
		return nil, err
	}

	m.metrics.ThreeDSOutcome("initiated")
	m.audit.Payment("3ds session initiated", map[string]any{
		"sessionId": sessionID,
		"cardToken": req.CardToken,
		"amount":    session.Amount.String(),
		"currency":  currency,
	})

	return &Challenge{
		SessionID:        sessionID,
		AcsURL:           session.AcsURL,
		ChallengeRequest: session.ChallengeRequest,
		MerchantData:     session.MerchantData,
		ExpiresAt:        session.ExpiresAt,
	}, nil
}

// Complete applies the ACS response to a pending session. A session is
// completed at most once whatever the outcome; there is no retry.
func (m *Manager) Complete(ctx context.Context, sessionID, challengeResponse string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return "", err
	}

	// An Expired status only ever comes from the TTL running out, so it is
	// reported as expired rather than processed.
	if session.Status == StatusExpired || (session.Status == StatusPending && now.After(session.ExpiresAt)) {
		if session.Status == StatusPending {
			m.expire(ctx, session, now)
		}
		return "", ErrSessionExpired
	}
	if session.Status != StatusPending {
		m.audit.Security("3ds session replay", map[string]any{
			"sessionId": sessionID,
			"status":    string(session.Status),
		})
		return "", ErrAlreadyProcessed
	}

	if !m.authenticated(session, challengeResponse) {
		session.Status = StatusFailed
		session.CompletedAt = now
		if err := m.save(ctx, session, now); err != nil {
			return "", err
		}
		m.metrics.ThreeDSOutcome("failed")
		m.audit.Security("3ds authentication failed", map[string]any{"sessionId": sessionID})
		return "", ErrAuthenticationFailed
	}

	session.Status = StatusCompleted
	session.CompletedAt = now
	session.TransactionID = "3ds_txn_" + uuid.New().String()
	if err := m.save(ctx, session, now); err != nil {
		return "", err
	}

	m.metrics.ThreeDSOutcome("completed")
	m.audit.Payment("3ds session completed", map[string]any{
		"sessionId":     sessionID,
		"transactionId": session.TransactionID,
	})
	return session.TransactionID, nil
}

// Peek reads a session without completing it. Past its expiry a session
// reads as not found, and a pending one is recorded as expired exactly as
// Complete would record it.
func (m *Manager) Peek(ctx context.Context, sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	session, err := m.load(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if now.After(session.ExpiresAt) || session.Status == StatusExpired {
		if session.Status == StatusPending {
			m.expire(ctx, session, now)
		}
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Verify checks that sessionID is a completed, unexpired authentication
// for exactly this token, amount and currency.
func (m *Manager) Verify(ctx context.Context, sessionID, cardToken string, amount decimal.Decimal, currency string) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrAuthenticationRequired
	}
	session, err := m.Peek(ctx, sessionID)
	if err != nil {
		return Session{}, ErrAuthenticationRequired
	}
	if session.Status != StatusCompleted ||
		session.CardToken != cardToken ||
		!session.Amount.Equal(amount) ||
		!strings.EqualFold(session.Currency, currency) {
		m.audit.Security("3ds session does not match charge", map[string]any{
			"sessionId": sessionID,
			"cardToken": cardToken,
			"status":    string(session.Status),
		})
		return Session{}, ErrAuthenticationRequired
	}
	return session, nil
}

// Discard removes a session once it has backed a charge.
func (m *Manager) Discard(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, sessionID string) (Session, error) {
	if !strings.HasPrefix(sessionID, SessionPrefix) {
		return Session{}, ErrSessionNotFound
	}
	session, ok, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, models.NewInternalError(err)
	}
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (m *Manager) expire(ctx context.Context, session Session, now time.Time) {
	session.Status = StatusExpired
	if err := m.save(ctx, session, now); err != nil {
		m.audit.Warn("failed to record expired session", map[string]any{
			"sessionId": session.SessionID,
			"error":     err,
		})
		return
	}
	m.metrics.ThreeDSOutcome("expired")
	m.audit.Security("3ds session expired", map[string]any{"sessionId": session.SessionID})
}

// save stores session until its expiry plus the retention period.
func (m *Manager) save(ctx context.Context, session Session, now time.Time) error {
	keep := session.ExpiresAt.Add(m.retention).Sub(now)
	if keep <= 0 {
		keep = time.Second
	}
	if err := m.store.Set(ctx, session.SessionID, session, keep); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (m *Manager) authenticated(session Session, challengeResponse string) bool {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(challengeResponse))
	if err != nil {
		return false
	}
	var resp ChallengeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false
	}
	if resp.MD != "" && resp.MD != session.MerchantData {
		return false
	}
	return resp.TransStatus == "Y"
}

// EncodeChallengeResponse builds a PARes the way the ACS sends it.
func EncodeChallengeResponse(transStatus, merchantData string) string {
	raw, _ := json.Marshal(ChallengeResponse{TransStatus: transStatus, MD: merchantData})
	return base64.StdEncoding.EncodeToString(raw)
}
