/*
oauth_authorize.go — Authorization Endpoint (GET /v1/oauth/authorize).

El trabajo pesado ya lo hizo la cadena de middlewares: client y redirect_uri
validados y cacheados en la sesión, site activo verificado. Acá queda:

 1. exigir sesión autenticada (si no: 302 al login con next=<esta URL>)
 2. rechazar cuentas bloqueadas
 3. chequear consent vigente (ReuseConsent) o derivar a la pantalla de consent
 4. emitir el authorization code (opaco, en cache, TTL corto) y redirigir

El code es de un solo uso: /v1/oauth/token lo borra al canjearlo.
*/
package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/portero/internal/app"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/http/middlewares"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	tokens "github.com/dropDatabas3/portero/internal/security/token"
	"github.com/dropDatabas3/portero/internal/session"
)

// authCode es el payload que vive en cache bajo "code:<code>".
type authCode struct {
	UserID      string    `json:"user_id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scope       string    `json:"scope"`
	Nonce       string    `json:"nonce,omitempty"`
	SiteID      int64     `json:"site_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func codeKey(code string) string { return "code:" + code }

func NewAuthorizeHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo GET", 1000)
			return
		}
		ctx := r.Context()
		s := middlewares.GetSession(ctx)
		if s == nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "sesión no inicializada", 1003)
			return
		}

		q := r.URL.Query()
		clientID := q.Get("client_id")
		if clientID == "" {
			clientID = s.GetExtraString(session.ExtraClientID)
		}
		redirectURI := q.Get("redirect_uri")
		if redirectURI == "" {
			redirectURI = s.GetExtraString(session.ExtraRedirectURI)
		}
		if clientID == "" || redirectURI == "" {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "client_id y redirect_uri son requeridos", 1002)
			return
		}

		if !s.Authenticated() {
			// next= conserva la request completa, layer incluido.
			next := url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, "/login?next="+next, http.StatusFound)
			return
		}

		u, err := c.Store.GetUserByID(ctx, s.UserID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo cargar la cuenta", 1003)
			return
		}
		if u.Blocked {
			httpx.WriteError(w, http.StatusForbidden, "account_blocked", "la cuenta está desactivada", 1104)
			return
		}

		cl, site, err := c.Store.GetClientByClientID(ctx, clientID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo cargar el client", 1003)
			return
		}

		scope := q.Get("scope")
		scopes := splitScopes(scope)
		if !hasConsent(ctx, c, s.UserID, cl.ClientID, scopes, cl.ReuseConsent) {
			http.Redirect(w, r, "/consent?"+q.Encode(), http.StatusFound)
			return
		}

		code, err := tokens.GenerateOpaqueToken(32)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo generar el code", 1003)
			return
		}
		payload := authCode{
			UserID:      s.UserID,
			ClientID:    cl.ClientID,
			RedirectURI: redirectURI,
			Scope:       scope,
			Nonce:       q.Get("nonce"),
			SiteID:      site.ID,
			ExpiresAt:   time.Now().UTC().Add(c.CodeTTL),
		}
		if err := cacheSetJSON(ctx, c.Cache, codeKey(code), payload, c.CodeTTL); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo persistir el code", 1003)
			return
		}

		logger.From(ctx).Info("authorization code emitido",
			logger.UserID(s.UserID), logger.ClientID(cl.ClientID), logger.SiteID(site.ID))

		dest, err := url.Parse(redirectURI)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "redirect_uri inválida", 1003)
			return
		}
		dq := dest.Query()
		dq.Set("code", code)
		if state := q.Get("state"); state != "" {
			dq.Set("state", state)
		}
		dest.RawQuery = dq.Encode()
		http.Redirect(w, r, dest.String(), http.StatusFound)
	}
}

// hasConsent decide si el consent vigente cubre los scopes pedidos.
// Sin ReuseConsent el client exige re-consentir en cada autorización.
func hasConsent(ctx context.Context, c *app.Container, userID, clientID string, scopes []string, reuse bool) bool {
	if !reuse {
		return false
	}
	consent, err := c.Store.GetConsent(ctx, userID, clientID)
	if err != nil {
		return false
	}
	granted := make(map[string]struct{}, len(consent.Scopes))
	for _, sc := range consent.Scopes {
		granted[sc] = struct{}{}
	}
	for _, sc := range scopes {
		if _, ok := granted[sc]; !ok {
			return false
		}
	}
	return true
}

func splitScopes(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
