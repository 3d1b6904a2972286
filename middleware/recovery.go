package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/utils"
)

// Recover turns a panic into the generic internal error response.
func Recover(audit *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					audit.Error("panic recovered", map[string]any{
						"panic":     fmt.Sprint(rec),
						"method":    r.Method,
						"path":      r.URL.Path,
						"requestId": RequestIDFromContext(r.Context()),
						"stack":     string(debug.Stack()),
					})
					utils.SendPaymentError(w, models.NewInternalError(fmt.Errorf("panic: %v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
