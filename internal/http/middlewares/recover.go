package middlewares

import (
	"net/http"
	"runtime/debug"

	"github.com/dropDatabas3/portero/internal/http/errorpage"
	"github.com/dropDatabas3/portero/internal/observability/logger"
)

// WithRecover captura panics del handler, loguea el stack y responde 500.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recuperado",
						logger.Any("panic", rec),
						logger.String("stack", string(debug.Stack())),
					)
					errorpage.Render(w, http.StatusInternalServerError, errorpage.Data{
						Message: "Ocurrió un error inesperado. Intentá de nuevo en unos minutos.",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
