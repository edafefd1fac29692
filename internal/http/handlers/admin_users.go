/*
admin_users.go — Superficie administrativa mínima (API key por header).

GET  /v1/admin/users/{userID}           lee una cuenta
GET  /v1/admin/clients                  lista los clients OIDC
POST /v1/admin/users/{userID}/delete    dispara el workflow de borrado
POST /v1/admin/invitations/purge        purga invitaciones vencidas

El borrado responde 202: el trabajo corre en el worker con su retry
policy, el admin no espera los downstream.
*/
package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/deletion"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/store/core"
)

// requireAdmin valida el header X-API-Key en tiempo constante.
func requireAdmin(c *app.Container, w http.ResponseWriter, r *http.Request) bool {
	want := c.Cfg.Security.AdminAPIKey
	got := r.Header.Get("X-API-Key")
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "API key inválida", 1115)
		return false
	}
	return true
}

func NewAdminUserGetHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(c, w, r) {
			return
		}
		userID := chi.URLParam(r, "userID")
		u, err := c.Store.GetUserByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				httpx.WriteError(w, http.StatusNotFound, "not_found", "cuenta inexistente", 1116)
				return
			}
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo cargar la cuenta", 1003)
			return
		}
		out := userJSON(u)
		out["blocked"] = u.Blocked
		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

func NewAdminClientsListHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(c, w, r) {
			return
		}
		list, err := c.Store.ListClients(r.Context())
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudieron listar los clients", 1003)
			return
		}
		out := make([]map[string]any, 0, len(list))
		for _, cl := range list {
			out = append(out, map[string]any{
				"client_id":     cl.ClientID,
				"name":          cl.Name,
				"site_id":       cl.SiteID,
				"active":        cl.Active,
				"scopes":        cl.Scopes,
				"redirect_uris": cl.RedirectURIs,
			})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"clients": out})
	}
}

type adminDeleteRequest struct {
	DeleterID string `json:"deleter_id"`
	Reason    string `json:"reason"`
}

func NewAdminUserDeleteHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(c, w, r) {
			return
		}
		userID := chi.URLParam(r, "userID")
		var req adminDeleteRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}

		ctx := r.Context()
		err := deletion.Enqueue(ctx, c.Queue, deletion.Request{
			UserID:    userID,
			DeleterID: req.DeleterID,
			Reason:    req.Reason,
		})
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo encolar el borrado", 1003)
			return
		}
		logger.From(ctx).Info("borrado de cuenta encolado",
			logger.UserID(userID), logger.String("deleter_id", req.DeleterID))
		httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func NewAdminInvitationsPurgeHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(c, w, r) {
			return
		}
		ctx := r.Context()
		local, err := c.Store.PurgeExpiredInvitations(ctx)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "purge local falló", 1003)
			return
		}
		out := map[string]int64{"purged": local}
		if c.AccessControl != nil {
			remote, err := c.AccessControl.PurgeExpiredInvitations(ctx)
			if err != nil {
				logger.From(ctx).Warn("purge en access-control falló", logger.Err(err))
			} else {
				out["purged_access_control"] = remote
			}
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	}
}
