/*
auth_register.go — Alta de cuenta central.

POST /v1/auth/register
	{
	  "email": "...",            (email o msisdn, al menos uno)
	  "msisdn": "...",
	  "first_name": "...",
	  "last_name": "...",
	  "password": "...",
	  "invitation_token": "..."  (opcional: alta pre-aprobada para un site)
	}

Respuesta:
	- 201 {"user_id": "..."}
	- 400 invalid_email / invalid_msisdn / weak_password
	- 409 already_registered

Con invitación válida la cuenta queda asociada al site de la invitación y
la invitación se marca usada (local y, si está configurado, en Access
Control). Si hay email se encola el mail de verificación; el registro no
espera al SMTP.
*/
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/email"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/security/password"
	"github.com/dropDatabas3/portero/internal/store/core"
	"github.com/dropDatabas3/portero/internal/validation"
)

type registerRequest struct {
	Email           string `json:"email"`
	Msisdn          string `json:"msisdn"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	InvitationToken string `json:"invitation_token"`
}

func NewRegisterHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo POST", 1000)
			return
		}
		w.Header().Set("Cache-Control", "no-store")

		var req registerRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		req.Msisdn = strings.TrimSpace(req.Msisdn)

		if req.Email == "" && req.Msisdn == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email o msisdn son requeridos", 1002)
			return
		}
		if req.Email != "" && !validation.ValidEmail(req.Email) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_email", "email inválido", 1105)
			return
		}
		if req.Msisdn != "" && !validation.ValidMsisdn(req.Msisdn) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_msisdn", "msisdn inválido (E.164 sin '+')", 1106)
			return
		}
		if err := c.PasswordPolicy.CheckPassword(req.Password); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "weak_password", "el password no cumple la política", 1107)
			return
		}

		ctx := r.Context()

		// Invitación (si viene) se resuelve antes de crear nada.
		var inv *core.Invitation
		if req.InvitationToken != "" {
			var err error
			inv, err = c.Store.GetInvitationByToken(ctx, req.InvitationToken)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					httpx.WriteError(w, http.StatusBadRequest, "invalid_invitation", "invitación inexistente", 1108)
					return
				}
				httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo leer la invitación", 1003)
				return
			}
			if inv.UsedAt != nil || time.Now().After(inv.ExpiresAt) {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_invitation", "invitación usada o vencida", 1108)
				return
			}
			if inv.Email != "" && !strings.EqualFold(inv.Email, req.Email) {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_invitation", "la invitación es para otro email", 1108)
				return
			}
		}

		if req.Email != "" {
			if _, err := c.Store.GetUserByEmail(ctx, req.Email); err == nil {
				httpx.WriteError(w, http.StatusConflict, "already_registered", "ya existe una cuenta con ese email", 1109)
				return
			} else if !errors.Is(err, core.ErrNotFound) {
				httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo validar el email", 1003)
				return
			}
		}
		if req.Msisdn != "" {
			if _, err := c.Store.GetUserByMsisdn(ctx, req.Msisdn); err == nil {
				httpx.WriteError(w, http.StatusConflict, "already_registered", "ya existe una cuenta con ese msisdn", 1109)
				return
			} else if !errors.Is(err, core.ErrNotFound) {
				httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo validar el msisdn", 1003)
				return
			}
		}

		hash, err := password.Hash(req.Password)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo procesar el password", 1003)
			return
		}

		// UUID v1: el timestamp embebido ordena cuentas por fecha de alta.
		id, err := uuid.NewUUID()
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo generar el id", 1003)
			return
		}
		u := &core.User{
			ID:           id.String(),
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			PasswordHash: &hash,
		}
		if req.Email != "" {
			u.Email = &req.Email
		}
		if req.Msisdn != "" {
			u.Msisdn = &req.Msisdn
		}
		if err := c.Store.SaveUser(ctx, u); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo crear la cuenta", 1003)
			return
		}
		log := logger.From(ctx).With(logger.UserID(u.ID))
		log.Info("cuenta creada")

		if inv != nil {
			if _, _, err := c.Store.GetOrCreateUserSite(ctx, u.ID, inv.SiteID); err != nil {
				log.Error("no se pudo asociar el site de la invitación",
					logger.SiteID(inv.SiteID), logger.Err(err))
			}
			if err := c.Store.MarkInvitationUsed(ctx, inv.ID); err != nil {
				log.Error("no se pudo marcar la invitación usada", logger.Err(err))
			}
			// Mirror en Access Control: best-effort, la fuente local manda.
			if c.AccessControl != nil {
				if err := c.AccessControl.InvitationRedeem(ctx, inv.ID, u.ID); err != nil {
					log.Warn("redeem de invitación en access-control falló", logger.Err(err))
				}
			}
		}

		if req.Email != "" {
			if err := email.EnqueueVerification(ctx, c.Queue, u.ID, req.Email); err != nil {
				log.Error("no se pudo encolar el mail de verificación", logger.Err(err))
			}
		}

		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"user_id": u.ID})
	}
}
