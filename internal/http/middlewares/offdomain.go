package middlewares

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/portero/internal/observability/logger"
)

// WithOffDomainCleanup inspecciona la respuesta: un 302 cuyo Location
// apunta fuera del host actual marca el fin del flujo, y el estado extra de
// la sesión se purga completo. Evita que theme/client/redirect de un flujo
// viejo contaminen el siguiente.
func WithOffDomainCleanup() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status != http.StatusFound {
				return
			}
			loc := rec.Header().Get("Location")
			if loc == "" {
				return
			}
			lu, err := url.Parse(loc)
			if err != nil || lu.Host == "" {
				return // relativo: sigue on-domain
			}
			if strings.EqualFold(stripPort(lu.Host), stripPort(r.Host)) {
				return
			}

			if s := GetSession(r.Context()); s != nil && s.Extra != nil {
				logger.From(r.Context()).Warn("bounce off-domain; purgando estado de flujo",
					logger.Location(loc))
				s.ClearExtra()
			}
		})
	}
}
