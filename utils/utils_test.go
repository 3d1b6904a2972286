package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyage-payment-api/models"
)

var opaqueIDPattern = regexp.MustCompile(`^tok_[0-9a-z]+_[0-9a-f]{16}[0-9a-f]{32}$`)

func TestNewOpaqueID(t *testing.T) {
	now := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)

	a, err := NewOpaqueID("tok_", now)
	require.NoError(t, err)
	b, err := NewOpaqueID("tok_", now)
	require.NoError(t, err)

	assert.Regexp(t, opaqueIDPattern, a)
	assert.NotEqual(t, a, b)
}

func TestEncodeDecodeString(t *testing.T) {
	decoded, err := DecodeString(EncodeString("3ds_session"))
	require.NoError(t, err)
	assert.Equal(t, "3ds_session", decoded)

	_, err = DecodeString("%%%")
	assert.Error(t, err)
}

func TestNormalizeCurrency(t *testing.T) {
	code, ok := NormalizeCurrency(" usd ")
	assert.True(t, ok)
	assert.Equal(t, "USD", code)

	for _, bad := range []string{"", "US", "USDT", "U$D", "12A"} {
		_, ok := NormalizeCurrency(bad)
		assert.False(t, ok, bad)
	}
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount(decimal.RequireFromString("199.90")))
	assert.False(t, ValidAmount(decimal.Zero))
	assert.False(t, ValidAmount(decimal.RequireFromString("-5")))
	assert.False(t, ValidAmount(decimal.RequireFromString("1.001")))
	assert.Equal(t, "12.50", FormatAmount(decimal.RequireFromString("12.5")))
}

func TestProcessorExpiry(t *testing.T) {
	assert.Equal(t, "2030-07", ProcessorExpiry(7, 2030))
}

func TestSendPaymentError(t *testing.T) {
	rec := httptest.NewRecorder()
	SendPaymentError(rec, models.NewUpstreamError(errors.New("dial tcp: timeout")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body models.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, models.ErrCodeUpstream, body.ErrorCode)
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Hotel", Truncate("Hotel", 10))
	assert.Equal(t, "Hot", Truncate("Hotel", 3))
	assert.Equal(t, "", Truncate("Hotel", 0))

	got := Truncate("Pousada São João", 11)
	assert.Equal(t, "Pousada São", got)
	assert.True(t, utf8.ValidString(got))

	// cut lands inside a multi-byte rune when slicing bytes
	got = Truncate("ãããã", 3)
	assert.Equal(t, "ããã", got)
	assert.True(t, utf8.ValidString(got))
}
