package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyage-payment-api/cache"
	"voyage-payment-api/middleware"
	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/services/binlookup"
	"voyage-payment-api/services/payment"
	"voyage-payment-api/services/threeds"
	"voyage-payment-api/services/tokenization"
)

const (
	testPAN = "4111111111111111"
	testCVV = "9417"
	amexPAN = "378282246310005"
)

type stubProcessor struct {
	mu    sync.Mutex
	err   error
	calls []models.ProcessorRequest
}

func (s *stubProcessor) Charge(_ context.Context, req models.ProcessorRequest) (*models.TransactionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.TransactionResponse{Success: true, TransactionID: "60200000001", AuthCode: "OK1234"}, nil
}

type testServer struct {
	router    *mux.Router
	processor *stubProcessor
	logs      *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	now := time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	var logs bytes.Buffer
	audit := security.NewAuditLogger(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})))

	tokens := tokenization.NewService(
		cache.NewMemoryStore[tokenization.Record](cache.WithClock(clock)),
		tokenization.Config{Now: clock, Audit: audit},
	)
	sessions := threeds.NewManager(
		cache.NewMemoryStore[threeds.Session](cache.WithClock(clock)),
		tokens,
		threeds.Config{Now: clock, Audit: audit},
	)
	processor := &stubProcessor{}
	orch := payment.NewOrchestrator(payment.Config{
		Vault:     tokens,
		Sessions:  sessions,
		BINLookup: binlookup.StaticLookup{ThreeDSSupported: true, RequireAbove: decimal.NewFromInt(500)},
		Processor: processor,
		Audit:     audit,
		Now:       clock,
	})

	h, err := NewPaymentHandler(tokens, sessions, orch, audit)
	require.NoError(t, err)

	limiter := security.NewRateLimiter(5, 15*time.Minute).WithClock(clock)
	router := NewRouter(RouterConfig{
		Payments:      h,
		Health:        NewHealthHandler(nil),
		TokenizeLimit: middleware.RateLimit(limiter, "tokenize", nil, nil, audit),
	})
	return &testServer{router: router, processor: processor, logs: &logs}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, path, reader)
	r.RemoteAddr = "198.51.100.10:40000"
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (s *testServer) tokenize(t *testing.T, number, cvv string) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/payments/tokenize", map[string]any{
		"number":      number,
		"expiryMonth": "09",
		"expiryYear":  2030,
		"cvv":         cvv,
		"name":        "Ana Lima",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["token"].(string)
}

func TestTokenize(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/payments/tokenize", map[string]any{
		"number":      "4111 1111 1111 1111",
		"expiryMonth": 9,
		"expiryYear":  "2030",
		"cvv":         "123",
		"name":        "Ana Lima",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.True(t, strings.HasPrefix(body["token"].(string), tokenization.TokenPrefix))
	assert.Equal(t, float64(3600), body["expiresIn"])

	info := body["cardInfo"].(map[string]any)
	assert.Equal(t, "4111********1111", info["maskedNumber"])
	assert.Equal(t, "1111", info["lastFour"])
	assert.Equal(t, "Visa", info["brand"])
	assert.Equal(t, float64(9), info["expiryMonth"])
	assert.Equal(t, float64(2030), info["expiryYear"])
	assert.NotContains(t, w.Body.String(), testPAN)
	assert.NotContains(t, w.Body.String(), `"cvv"`)
}

func TestTokenize_ValidationError(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/payments/tokenize", map[string]any{
		"number":      "4111111111111112",
		"expiryMonth": 9,
		"expiryYear":  2030,
		"cvv":         testCVV,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, models.ErrCodeInvalidCardNumber, body["errorCode"])
	assert.NotContains(t, w.Body.String(), "4111111111111112")
	assert.NotContains(t, s.logs.String(), "4111111111111112")
}

func TestTokenize_RateLimited(t *testing.T) {
	s := newTestServer(t)
	card := map[string]any{"number": "1234", "expiryMonth": 1, "expiryYear": 2030, "cvv": "1"}

	for i := 0; i < 5; i++ {
		w, _ := s.do(t, http.MethodPost, "/api/payments/tokenize", card)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
	w, body := s.do(t, http.MethodPost, "/api/payments/tokenize", card)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, models.ErrCodeRateLimited, body["errorCode"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// only tokenization is limited
	w, _ = s.do(t, http.MethodPost, "/api/payments/process", map[string]any{"cardToken": "tok_x", "amount": "1", "currency": "USD"})
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
}

func TestProcessPayment(t *testing.T) {
	s := newTestServer(t)
	token := s.tokenize(t, testPAN, "123")

	w, body := s.do(t, http.MethodPost, "/api/payments/process", map[string]any{
		"cardToken":   token,
		"amount":      "129.90",
		"currency":    "usd",
		"description": "Hotel Lisboa",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "60200000001", body["transactionId"])
	assert.Equal(t, "129.9", body["amount"])
	assert.Equal(t, "USD", body["currency"])
	assert.Equal(t, false, body["requires3D"])
	info := body["cardInfo"].(map[string]any)
	assert.Equal(t, "1111", info["lastFour"])
	assert.Equal(t, "Visa", info["brand"])
	assert.Equal(t, "4111********1111", info["maskedNumber"])

	w, body = s.do(t, http.MethodPost, "/api/payments/process", map[string]any{
		"cardToken": token,
		"amount":    "129.90",
		"currency":  "USD",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidToken, body["errorCode"])
	assert.Len(t, s.processor.calls, 1)
}

func TestProcessPayment_ThreeDSFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.tokenize(t, testPAN, "123")
	charge := map[string]any{"cardToken": token, "amount": "900.00", "currency": "EUR"}

	w, body := s.do(t, http.MethodPost, "/api/payments/process", charge)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeAuthenticationRequired, body["errorCode"])
	assert.Empty(t, s.processor.calls)

	w, body = s.do(t, http.MethodPost, "/api/payments/3ds/initiate", map[string]any{
		"cardToken": token,
		"amount":    "900.00",
		"currency":  "EUR",
		"orderId":   "BK-1001",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sessionID := body["sessionId"].(string)
	assert.NotEmpty(t, body["acsUrl"])
	assert.NotEmpty(t, body["pareq"])
	md := body["md"].(string)

	w, body = s.do(t, http.MethodPost, "/api/payments/3ds/complete", map[string]any{
		"sessionId": sessionID,
		"pares":     threeds.EncodeChallengeResponse("Y", md),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["transactionId"])

	charge["threeDSSessionId"] = sessionID
	w, body = s.do(t, http.MethodPost, "/api/payments/process", charge)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["requires3D"])
	require.Len(t, s.processor.calls, 1)
	assert.Equal(t, "BK-1001", s.processor.calls[0].InvoiceNumber)
}

func TestCompleteThreeDS_Errors(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/payments/3ds/complete", map[string]any{
		"sessionId": "does-not-exist",
		"pares":     "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidSession, body["errorCode"])

	token := s.tokenize(t, testPAN, "123")
	_, body = s.do(t, http.MethodPost, "/api/payments/3ds/initiate", map[string]any{
		"cardToken": token, "amount": "10", "currency": "USD",
	})
	sessionID := body["sessionId"].(string)

	w, body = s.do(t, http.MethodPost, "/api/payments/3ds/complete", map[string]any{
		"sessionId": sessionID,
		"pares":     threeds.EncodeChallengeResponse("N", ""),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeAuthenticationFailed, body["errorCode"])

	w, body = s.do(t, http.MethodPost, "/api/payments/3ds/complete", map[string]any{
		"sessionId": sessionID,
		"pares":     threeds.EncodeChallengeResponse("Y", ""),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeSessionProcessed, body["errorCode"])
}

func TestInitiateThreeDS_InvalidInput(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/payments/3ds/initiate", map[string]any{
		"cardToken": "tok_unknown", "amount": "10", "currency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidToken, body["errorCode"])

	token := s.tokenize(t, testPAN, "123")
	w, body = s.do(t, http.MethodPost, "/api/payments/3ds/initiate", map[string]any{
		"cardToken": token, "amount": "-5", "currency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidAmount, body["errorCode"])
}

func TestProcessPayment_UpstreamFailureIsGeneric(t *testing.T) {
	s := newTestServer(t)
	token := s.tokenize(t, amexPAN, testCVV)
	s.processor.err = errors.New("gateway rejected card " + amexPAN + ": connection reset")

	w, body := s.do(t, http.MethodPost, "/api/payments/process", map[string]any{
		"cardToken": token, "amount": "42.00", "currency": "USD",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.ErrCodeUpstream, body["errorCode"])
	assert.Equal(t, "Payment could not be processed. Please try again later.", body["error"])

	for _, secret := range []string{amexPAN, testCVV, token} {
		assert.NotContains(t, w.Body.String(), secret)
		assert.NotContains(t, s.logs.String(), secret)
	}
}

func TestInvalidBody(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/payments/tokenize", "/api/payments/3ds/initiate", "/api/payments/3ds/complete", "/api/payments/process"} {
		w, body := s.do(t, http.MethodPost, path, `{"amount": not-json`)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, models.ErrCodeValidation, body["errorCode"], path)
	}

	w, body := s.do(t, http.MethodPost, "/api/payments/tokenize", `{"number":"`+testPAN+`","expiryMonth":"`+testCVV+`x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeValidation, body["errorCode"])
	assert.NotContains(t, s.logs.String(), testCVV)
	assert.NotContains(t, s.logs.String(), testPAN)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/payments/tokenize", "/api/payments/3ds/initiate", "/api/payments/3ds/complete", "/api/payments/process"} {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			w, _ := s.do(t, method, path, nil)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method+" "+path)
			assert.JSONEq(t, `{"success":false,"error":"Method not allowed","errorCode":"METHOD_NOT_ALLOWED"}`, w.Body.String())
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	h := NewHealthHandler(map[string]Check{
		"redis":    func(context.Context) error { return nil },
		"database": func(context.Context) error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health["status"])
	deps := health["dependencies"].(map[string]any)
	assert.Equal(t, "connected", deps["redis"])
	assert.Equal(t, "error", deps["database"])
}

func TestNewPaymentHandler_RequiresCollaborators(t *testing.T) {
	_, err := NewPaymentHandler(nil, nil, nil, nil)
	assert.Error(t, err)
}
