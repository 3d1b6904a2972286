package middleware

import (
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"voyage-payment-api/metrics"
	"voyage-payment-api/models"
	"voyage-payment-api/security"
	"voyage-payment-api/utils"
)

var ErrRateLimited = models.NewPaymentError(models.KindRateLimit, models.ErrCodeRateLimited,
	"Too many attempts. Please try again later.", nil)

// RateLimit spends one attempt of the caller's IP per request and answers
// 429 once the allowance is gone.
func RateLimit(limiter *security.RateLimiter, route string, proxies *ProxyResolver, rec metrics.Recorder, audit *security.AuditLogger) func(http.Handler) http.Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if audit == nil {
		audit = security.NewAuditLogger(nil)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxies.ClientIP(r)
			if !limiter.IsAllowed(ip) {
				retryAfter := limiter.RetryAfter(ip)
				rec.RateLimited(route)
				audit.Security("rate limit exceeded", map[string]any{
					"route":     route,
					"ip":        ip,
					"requestId": RequestIDFromContext(r.Context()),
				})
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
				utils.SendPaymentError(w, ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// ProxyResolver works out the client address of a request. Forwarding
// headers are only believed when the connecting peer is a trusted proxy; a
// nil resolver trusts nobody.
type ProxyResolver struct {
	trusted []netip.Prefix
}

func NewProxyResolver(trusted []netip.Prefix) *ProxyResolver {
	return &ProxyResolver{trusted: trusted}
}

func (p *ProxyResolver) trusts(addr netip.Addr) bool {
	if p == nil {
		return false
	}
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the socket peer, or for a trusted peer the nearest
// untrusted hop named by its forwarding headers.
func (p *ProxyResolver) ClientIP(r *http.Request) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !p.trusts(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			hop = hop.Unmap()
			if i == 0 || !p.trusts(hop) {
				return hop.String()
			}
		}
	}

	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get(header))); err == nil {
			return addr.Unmap().String()
		}
	}
	return peer.String()
}

func peerAddr(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}
