package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"voyage-payment-api/security"
)

const SlowRequestThreshold = 500 * time.Millisecond

type requestIDKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.status = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.status = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// AccessLog tags every request with an id and logs the ones that were slow
// or failed.
func AccessLog(audit *security.AuditLogger, proxies *ProxyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()
			w.Header().Set("X-Request-ID", requestID)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

			wrapper := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			elapsed := time.Since(start)
			if elapsed <= SlowRequestThreshold && wrapper.status < http.StatusBadRequest {
				return
			}
			details := map[string]any{
				"requestId":  requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapper.status,
				"durationMs": elapsed.Milliseconds(),
				"ip":         proxies.ClientIP(r),
			}
			if wrapper.status >= http.StatusInternalServerError {
				audit.Error("http request", details)
			} else {
				audit.Warn("http request", details)
			}
		})
	}
}
