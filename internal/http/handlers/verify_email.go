// verify_email.go — Confirmación del email (GET /v1/auth/verify-email?token=).
//
// El token viaja en el link del mail; en cache vive su hash apuntando al
// user. Un solo uso: se borra apenas se consume.
package handlers

import (
	"net/http"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/cache"
	"github.com/dropDatabas3/portero/internal/email"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/observability/logger"
)

func NewVerifyEmailHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo GET", 1000)
			return
		}
		tok := r.URL.Query().Get("token")
		if tok == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_token", "token requerido", 1002)
			return
		}

		ctx := r.Context()
		key := email.VerificationKey(tok)
		userID, err := c.Cache.Get(ctx, key)
		if err != nil {
			if cache.IsNotFound(err) {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_token", "token inexistente o vencido", 1114)
				return
			}
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo validar el token", 1003)
			return
		}

		u, err := c.Store.GetUserByID(ctx, userID)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_token", "la cuenta ya no existe", 1114)
			return
		}
		if !u.EmailVerified {
			u.EmailVerified = true
			if err := c.Store.SaveUser(ctx, u); err != nil {
				httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo confirmar el email", 1003)
				return
			}
		}
		_ = c.Cache.Delete(ctx, key)

		logger.From(ctx).Info("email verificado", logger.UserID(u.ID))
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"verified": true})
	}
}
