/*
oauth_consent.go — Pantalla y aceptación de consent.

GET  /v1/oauth/consent
	Devuelve los datos del client que la UI necesita mostrar (nombre,
	términos, website), leídos del cache de sesión que pobló el middleware.

POST /v1/oauth/consent/accept
	{"scopes": ["openid", ...]}
	Publica ConsentGranted en el bus. El recorder persiste el consent y
	asegura el UserSite; si el client está mal provisionado el error del
	handler corta acá con 500 (nunca se absorbe).
*/
package handlers

import (
	"net/http"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/events"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/http/middlewares"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/session"
)

func NewConsentInfoHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo GET", 1000)
			return
		}
		s := middlewares.GetSession(r.Context())
		if s == nil || s.GetExtraString(session.ExtraClientID) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "no_flow", "no hay flujo de autorización en curso", 1112)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"client_name":   s.GetExtraString(session.ExtraClientName),
			"client_uri":    s.GetExtraString(session.ExtraClientURI),
			"terms_url":     s.GetExtraString(session.ExtraClientTerms),
			"website_url":   s.GetExtraString(session.ExtraClientWeb),
			"scopes":        splitScopes(r.URL.Query().Get("scope")),
			"theme":         s.GetExtraString(session.ExtraTheme),
			"authenticated": s.Authenticated(),
		})
	}
}

type consentAcceptRequest struct {
	Scopes []string `json:"scopes"`
}

func NewConsentAcceptHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo POST", 1000)
			return
		}
		ctx := r.Context()
		s := middlewares.GetSession(ctx)
		if s == nil || !s.Authenticated() {
			httpx.WriteError(w, http.StatusUnauthorized, "login_required", "se requiere sesión autenticada", 1113)
			return
		}
		clientID := s.GetExtraString(session.ExtraClientID)
		if clientID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "no_flow", "no hay flujo de autorización en curso", 1112)
			return
		}

		var req consentAcceptRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}

		err := c.Bus.PublishConsent(ctx, events.ConsentGranted{
			UserID:   s.UserID,
			ClientID: clientID,
			Scopes:   req.Scopes,
		})
		if err != nil {
			// Error de provisioning o de store: el consent NO quedó registrado.
			logger.From(ctx).Error("registro de consent falló",
				logger.UserID(s.UserID), logger.ClientID(clientID), logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo registrar el consent", 1003)
			return
		}

		if redirect := s.GetExtraString(session.ExtraRedirectURI); redirect != "" {
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"redirect_uri": redirect})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
