package web

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/registrysync/internal/logging"
	"github.com/ulule/limiter/v3"
)

var errRateLimited = errors.New("rate limit exceeded")

// rateLimit limits requests per client IP to perMinute. scope keeps the
// counters of separate limiters apart when they share a store.
func (s *Server) rateLimit(scope string, perMinute int64) func(http.Handler) http.Handler {
	l := limiter.New(s.rateStore, limiter.Rate{Period: time.Minute, Limit: perMinute})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			logger := logging.FromContext(r.Context())

			lctx, err := l.Get(r.Context(), scope+":"+ip)
			if err != nil {
				logger.Error("rate limit check failed", "ip", ip, "scope", scope, "error", err)
				s.respondError(w, r, err)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"scope", scope,
					"limit", lctx.Limit,
				)
				w.Header().Set("Retry-After", retryAfter(lctx.Reset))
				s.respondError(w, r, errRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter converts a reset unix timestamp to whole seconds from now.
func retryAfter(reset int64) string {
	secs := reset - time.Now().Unix()
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// clientIP returns the request's address without port. TrustedRealIP has
// already replaced RemoteAddr when a trusted proxy forwarded the request.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
