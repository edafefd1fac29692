// flow_info.go — Estado del flujo para las pantallas de la SPA.
//
// GET /login, /register y /profile/edit pasan por el middleware de
// authorization request (que valida y cachea el client en la sesión) y
// terminan acá: la UI recibe lo necesario para renderizar la pantalla.
package handlers

import (
	"net/http"

	"github.com/dropDatabas3/portero/internal/app"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/http/middlewares"
	"github.com/dropDatabas3/portero/internal/session"
)

func NewFlowInfoHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo GET", 1000)
			return
		}
		s := middlewares.GetSession(r.Context())
		if s == nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "sesión no inicializada", 1003)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": s.Authenticated(),
			"client_name":   s.GetExtraString(session.ExtraClientName),
			"client_uri":    s.GetExtraString(session.ExtraClientURI),
			"terms_url":     s.GetExtraString(session.ExtraClientTerms),
			"website_url":   s.GetExtraString(session.ExtraClientWeb),
			"theme":         s.GetExtraString(session.ExtraTheme),
			"redirect_uri":  s.GetExtraString(session.ExtraRedirectURI),
		})
	}
}
