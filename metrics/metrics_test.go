package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.TokenIssued("Visa")
	c.TokenIssued("Visa")
	c.TokenRejected("INVALID_CVV")
	c.ThreeDSOutcome("completed")
	c.PaymentOutcome("success")
	c.RateLimited("tokenize")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `payments_card_tokens_issued_total{brand="Visa"} 2`)
	assert.Contains(t, body, `payments_card_tokens_rejected_total{reason="INVALID_CVV"} 1`)
	assert.Contains(t, body, `payments_threeds_sessions_total{outcome="completed"} 1`)
	assert.Contains(t, body, `payments_charges_total{result="success"} 1`)
	assert.Contains(t, body, `payments_rate_limited_total{route="tokenize"} 1`)
}

func TestHandler_ExposesStoreGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	RegisterStoreSize(reg, "card_tokens", func() int { return 3 })

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `payments_store_entries{store="card_tokens"} 3`)
}

func TestRegisterQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterQueueDepth(reg, "payment_ledger", func(context.Context) (int64, int64, int64, error) {
		return 4, 2, 1, nil
	})
	RegisterQueueDepth(reg, "unreachable", func(context.Context) (int64, int64, int64, error) {
		return 0, 0, 0, errors.New("dial tcp: connection refused")
	})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `payments_queue_jobs{queue="payment_ledger",state="pending"} 4`)
	assert.Contains(t, body, `payments_queue_jobs{queue="payment_ledger",state="delayed"} 2`)
	assert.Contains(t, body, `payments_queue_jobs{queue="payment_ledger",state="failed"} 1`)
	assert.NotContains(t, body, `queue="unreachable"`)
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.TokenIssued("Visa")
	r.PaymentOutcome("failed")
}
