/*
auth_login.go — Login con password contra la cuenta central.

POST /v1/auth/login
	{"email": "...", "password": "..."}  (o "msisdn" en lugar de email)

Respuesta:
	- 200 {"redirect_uri": "..."} si había un flujo de autorización en curso
	- 204 si fue login directo al servicio
	- 401 invalid_credentials (mismo código para cuenta inexistente y password malo)
	- 403 account_blocked

Efectos:
	- Rota el token de sesión (fixation) y asocia el user a la sesión.
	- Publica LoginSucceeded en el bus; los handlers registrados encolan el
	  evento de auditoría con el site del flujo o el self site como fallback.
*/
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/events"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/http/middlewares"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/security/password"
	"github.com/dropDatabas3/portero/internal/session"
	"github.com/dropDatabas3/portero/internal/store/core"
)

type loginRequest struct {
	Email    string `json:"email"`
	Msisdn   string `json:"msisdn"`
	Password string `json:"password"`
}

func NewLoginHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo POST", 1000)
			return
		}
		w.Header().Set("Cache-Control", "no-store")

		var req loginRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		req.Msisdn = strings.TrimSpace(req.Msisdn)
		if (req.Email == "" && req.Msisdn == "") || req.Password == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email/msisdn y password son requeridos", 1002)
			return
		}

		ctx := r.Context()
		var (
			u   *core.User
			err error
		)
		if req.Email != "" {
			u, err = c.Store.GetUserByEmail(ctx, req.Email)
		} else {
			u, err = c.Store.GetUserByMsisdn(ctx, req.Msisdn)
		}
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo resolver la cuenta", 1003)
			return
		}

		// Cuenta inexistente y password inválido responden igual: no
		// filtramos qué emails existen.
		if u == nil || !password.Verify(u.PasswordHash, req.Password) {
			httpx.CountLogin("bad_credentials")
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "credenciales inválidas", 1101)
			return
		}
		if u.Blocked {
			httpx.CountLogin("blocked")
			httpx.WriteError(w, http.StatusForbidden, "account_blocked", "la cuenta está desactivada", 1104)
			return
		}

		s := middlewares.GetSession(ctx)
		if s == nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "sesión no inicializada", 1003)
			return
		}
		s.UserID = u.ID
		if err := c.Sessions.Rotate(ctx, w, s); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo establecer la sesión", 1003)
			return
		}

		ev := events.LoginSucceeded{
			UserID:   u.ID,
			ClientID: s.GetExtraString(session.ExtraClientID),
		}
		if v, ok := s.GetExtra(session.ExtraSiteID); ok {
			ev.SiteID = asInt64(v)
		}
		if err := c.Bus.PublishLogin(ctx, ev); err != nil {
			// El login ya ocurrió; un handler que falle no lo revierte.
			logger.From(ctx).Error("handler de login falló", logger.Err(err), logger.UserID(u.ID))
		}
		httpx.CountLogin("ok")

		if redirect := s.GetExtraString(session.ExtraRedirectURI); redirect != "" {
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"redirect_uri": redirect})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// asInt64 tolera los dos encodings posibles del site_id en la sesión:
// int64 en memoria y float64 tras el round-trip JSON por cache.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
