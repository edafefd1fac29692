/*
oauth_token.go — Token Endpoint (POST /v1/oauth/token).

Canjea un authorization code por un ID token firmado (HS256). El code es
de un solo uso: se borra del cache antes de validar el resto, así un
segundo canje concurrente pierde la carrera limpio.

	grant_type=authorization_code&code=...&client_id=...&redirect_uri=...
*/
package handlers

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/cache"
	"github.com/dropDatabas3/portero/internal/config"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/observability/logger"
)

func NewTokenHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo POST", 1000)
			return
		}
		w.Header().Set("Cache-Control", "no-store")

		if err := r.ParseForm(); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "form inválido", 1002)
			return
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			httpx.WriteError(w, http.StatusBadRequest, "unsupported_grant_type", "solo authorization_code", 1110)
			return
		}
		code := r.PostForm.Get("code")
		clientID := r.PostForm.Get("client_id")
		redirectURI := r.PostForm.Get("redirect_uri")
		if code == "" || clientID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code y client_id son requeridos", 1002)
			return
		}

		ctx := r.Context()
		var payload authCode
		if err := cacheGetJSON(ctx, c.Cache, codeKey(code), &payload); err != nil {
			if cache.IsNotFound(err) {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", "code inexistente o vencido", 1111)
				return
			}
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo leer el code", 1003)
			return
		}
		// Single use: fuera del cache antes de seguir validando.
		_ = c.Cache.Delete(ctx, codeKey(code))

		if payload.ClientID != clientID || payload.RedirectURI != redirectURI {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", "el code no corresponde a este client", 1111)
			return
		}
		if time.Now().After(payload.ExpiresAt) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", "code vencido", 1111)
			return
		}

		// La cuenta pudo bloquearse entre authorize y el canje.
		u, err := c.Store.GetUserByID(ctx, payload.UserID)
		if err != nil || u.Blocked {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", "la cuenta no está disponible", 1111)
			return
		}

		idToken, err := c.Issuer.IssueIDToken(payload.UserID, payload.ClientID, payload.Nonce, payload.SiteID)
		if err != nil {
			logger.From(ctx).Error("firma de ID token falló", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo emitir el token", 1003)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"id_token":   idToken,
			"token_type": "Bearer",
			"expires_in": int(config.MustDuration(c.Cfg.OIDC.IDTokenTTL).Seconds()),
			"scope":      payload.Scope,
		})
	}
}
