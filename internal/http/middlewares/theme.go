package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/portero/internal/session"
)

// LayerHeader es el header con el theme vigente, consumido por las vistas.
const LayerHeader = "X-Portero-Layer"

// WithThemeHeader expone el theme de la sesión en el header de respuesta.
// Corre en TODOS los requests, no sólo en los paths del flujo: las vistas
// ajenas al flujo también renderizan con el theme vigente.
func WithThemeHeader() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s := GetSession(r.Context()); s != nil {
				if theme := s.GetExtraString(session.ExtraTheme); theme != "" {
					w.Header().Set(LayerHeader, theme)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
