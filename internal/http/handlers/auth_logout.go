/*
auth_logout.go — Cierre de sesión.

POST /v1/auth/logout
	Query opcional: post_logout_redirect_uri (se valida contra la lista
	registrada del client del flujo; si no matchea se ignora).

Respuesta:
	- 200 {"redirect_uri": "..."} si hay un destino post-logout válido
	- 204 si no

El evento LogoutSucceeded se publica ANTES de destruir la sesión: después
ya no queda user ni contexto de client para armarlo.
*/
package handlers

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/events"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/http/middlewares"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/session"
	"github.com/dropDatabas3/portero/internal/store/core"
)

func NewLogoutHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo POST", 1000)
			return
		}
		w.Header().Set("Cache-Control", "no-store")

		ctx := r.Context()
		s := middlewares.GetSession(ctx)
		if s == nil || !s.Authenticated() {
			// Logout sin sesión activa es un no-op amable.
			w.WriteHeader(http.StatusNoContent)
			return
		}

		clientID := s.GetExtraString(session.ExtraClientID)
		redirect := validPostLogoutRedirect(r, c, clientID)

		ev := events.LogoutSucceeded{
			UserID:   s.UserID,
			ClientID: clientID,
		}
		if v, ok := s.GetExtra(session.ExtraSiteID); ok {
			ev.SiteID = asInt64(v)
		}
		if err := c.Bus.PublishLogout(ctx, ev); err != nil {
			logger.From(ctx).Error("handler de logout falló", logger.Err(err), logger.UserID(s.UserID))
		}

		if err := c.Sessions.Destroy(ctx, w, r); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo cerrar la sesión", 1003)
			return
		}
		s.Invalidate()

		if redirect != "" {
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"redirect_uri": redirect})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// validPostLogoutRedirect resuelve el destino post-logout pedido, sólo si
// está registrado en el client del flujo. Destino no registrado se descarta
// en silencio (no es un error del usuario final).
func validPostLogoutRedirect(r *http.Request, c *app.Container, clientID string) string {
	want := r.URL.Query().Get("post_logout_redirect_uri")
	if want == "" || clientID == "" {
		return ""
	}
	cl, _, err := c.Store.GetClientByClientID(r.Context(), clientID)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			logger.From(r.Context()).Warn("lookup de client para post-logout falló",
				logger.ClientID(clientID), logger.Err(err))
		}
		return ""
	}
	for _, u := range cl.PostLogoutRedirectURIs {
		if u == want {
			return want
		}
	}
	return ""
}
