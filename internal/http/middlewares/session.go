package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/session"
)

// WithSession carga (o crea) la sesión del request y la inyecta en el
// contexto. Al volver el handler persiste el estado final: los middlewares
// y handlers internos mutan la sesión en memoria y acá se escribe una sola
// vez. Last-write-wins entre requests concurrentes de la misma sesión.
func WithSession(m *session.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			s, err := m.GetOrCreate(ctx, w, r)
			if err != nil {
				logger.From(ctx).Error("no se pudo cargar la sesión", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithSessionCtx(ctx, s)
			if s.UserID != "" {
				ctx = WithUserID(ctx, s.UserID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			if err := m.Save(ctx, s); err != nil {
				logger.From(ctx).Error("no se pudo persistir la sesión", logger.Err(err))
			}
		})
	}
}
