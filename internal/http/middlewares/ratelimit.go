package middlewares

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/rate"
)

// KeyFunc deriva la key de rate limiting del request.
type KeyFunc func(r *http.Request) string

// WithRateLimit aplica un limiter fixed-window al handler.
// Ante error del backend de rate limiting se deja pasar (fail-open): no
// queremos tirar el login porque Redis parpadeó.
func WithRateLimit(l rate.Limiter, keyFn KeyFunc) Middleware {
	if keyFn == nil {
		keyFn = IPPathRateKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter no disponible", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				retry := int(res.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
