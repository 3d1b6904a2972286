package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyage-payment-api/security"
)

type countingRecorder struct {
	rateLimited map[string]int
}

func (c *countingRecorder) TokenIssued(string)    {}
func (c *countingRecorder) TokenRejected(string)  {}
func (c *countingRecorder) ThreeDSOutcome(string) {}
func (c *countingRecorder) PaymentOutcome(string) {}
func (c *countingRecorder) RateLimited(route string) {
	if c.rateLimited == nil {
		c.rateLimited = map[string]int{}
	}
	c.rateLimited[route]++
}

func newAudit() (*security.AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return security.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil))), &buf
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimit(t *testing.T) {
	now := time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
	limiter := security.NewRateLimiter(2, time.Minute).WithClock(func() time.Time { return now })
	rec := &countingRecorder{}
	audit, _ := newAudit()
	h := RateLimit(limiter, "tokenize", nil, rec, audit)(okHandler)

	call := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/payments/tokenize", nil)
		r.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1").Code)

	w := call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["errorCode"])
	assert.Equal(t, 1, rec.rateLimited["tokenize"])

	assert.Equal(t, http.StatusOK, call("10.0.0.2").Code, "other clients keep their own allowance")
}

func TestRateLimit_IgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	limiter := security.NewRateLimiter(5, 15*time.Minute)
	audit, _ := newAudit()
	proxies := NewProxyResolver([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})
	h := RateLimit(limiter, "tokenize", proxies, nil, audit)(okHandler)

	for i := 1; i <= 6; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/payments/tokenize", nil)
		r.RemoteAddr = "198.51.100.20:40000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		r.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if i <= 5 {
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Code, "request %d", i)
		}
	}
}

func TestProxyResolver_ClientIP(t *testing.T) {
	proxies := NewProxyResolver([]netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8::/32"),
	})

	tests := []struct {
		name     string
		resolver *ProxyResolver
		headers  map[string]string
		remote   string
		want     string
	}{
		{"forwarded list via proxy", proxies, map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.9"}, "10.0.0.1:80", "203.0.113.7"},
		{"spoofed leftmost hop", proxies, map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.5"}, "10.0.0.1:80", "198.51.100.5"},
		{"real ip via proxy", proxies, map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:80", "198.51.100.2"},
		{"cloudflare via proxy", proxies, map[string]string{"CF-Connecting-IP": "192.0.2.9"}, "10.0.0.1:80", "192.0.2.9"},
		{"garbage header via proxy", proxies, map[string]string{"X-Real-IP": "nope"}, "10.0.0.1:80", "10.0.0.1"},
		{"untrusted peer", proxies, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.44:51234", "192.0.2.44"},
		{"nil resolver", nil, map[string]string{"X-Real-IP": "198.51.100.2"}, "192.0.2.44:51234", "192.0.2.44"},
		{"ipv6 peer", nil, nil, "[2001:db9::1]:443", "2001:db9::1"},
		{"ipv6 proxy", proxies, map[string]string{"X-Forwarded-For": "203.0.113.8"}, "[2001:db8::1]:443", "203.0.113.8"},
		{"mapped ipv4", nil, nil, "[::ffff:192.0.2.1]:80", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.resolver.ClientIP(r))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/payments/process", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")

	w = httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	h := CORS("https://shop.voyage.test")(okHandler)

	t.Run("preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/payments/process", nil)
		r.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://shop.voyage.test", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("bare options reaches the router", func(t *testing.T) {
		reached := false
		h := CORS("*")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			w.WriteHeader(http.StatusMethodNotAllowed)
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/payments/process", nil))
		assert.True(t, reached)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestAccessLog(t *testing.T) {
	audit, logs := newAudit()

	var seenID string
	h := AccessLog(audit, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusBadRequest)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/payments/process", nil))

	require.NotEmpty(t, seenID)
	assert.Equal(t, seenID, w.Header().Get("X-Request-ID"))
	assert.Contains(t, logs.String(), `"status":400`)
	assert.Contains(t, logs.String(), `"path":"/api/payments/process"`)

	logs.Reset()
	AccessLog(audit, nil)(okHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Empty(t, logs.String(), "fast successful requests are not logged")
}

func TestRecover(t *testing.T) {
	audit, logs := newAudit()
	h := Recover(audit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("card 4242424242424242 exploded")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/payments/process", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error","errorCode":"INTERNAL_ERROR"}`, w.Body.String())
	assert.Contains(t, logs.String(), "panic recovered")
	assert.NotContains(t, logs.String(), "4242424242424242")
	assert.NotContains(t, w.Body.String(), "4242424242424242")
}
