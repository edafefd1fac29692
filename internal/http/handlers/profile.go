/*
profile.go — Perfil de la cuenta autenticada.

GET  /v1/me        datos de la cuenta
GET  /v1/me/sites  sites asociados, con datos de perfil por site
POST /v1/me/edit   actualiza nombres/nickname/gender/birth_date/country/email/msisdn

Cambiar email o msisdn resetea el flag verified correspondiente; eso lo
aplica SaveUser en el repositorio, acá sólo se validan formatos. Con email
nuevo se encola otra verificación.

Una cuenta bloqueada no puede usar el perfil aunque tenga sesión viva:
el bloqueo es el checkpoint del borrado y tiene que cubrir esta superficie
igual que login/authorize/token.
*/
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/email"
	httpx "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/http/middlewares"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/store/core"
	"github.com/dropDatabas3/portero/internal/validation"
)

func userJSON(u *core.User) map[string]any {
	out := map[string]any{
		"id":              u.ID,
		"first_name":      u.FirstName,
		"last_name":       u.LastName,
		"nickname":        u.Nickname,
		"gender":          u.Gender,
		"country":         u.Country,
		"email_verified":  u.EmailVerified,
		"msisdn_verified": u.MsisdnVerified,
		"created_at":      u.CreatedAt,
	}
	if u.Username != nil {
		out["username"] = *u.Username
	}
	if u.Email != nil {
		out["email"] = *u.Email
	}
	if u.Msisdn != nil {
		out["msisdn"] = *u.Msisdn
	}
	if u.BirthDate != nil {
		out["birth_date"] = u.BirthDate.Format("2006-01-02")
	}
	if u.OrganisationID != nil {
		out["organisation_id"] = *u.OrganisationID
	}
	return out
}

func NewMeHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo GET", 1000)
			return
		}
		userID := middlewares.GetUserID(r.Context())
		if userID == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "login_required", "se requiere sesión autenticada", 1113)
			return
		}
		u, err := c.Store.GetUserByID(r.Context(), userID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo cargar la cuenta", 1003)
			return
		}
		if u.Blocked {
			httpx.WriteError(w, http.StatusForbidden, "account_blocked", "la cuenta está desactivada", 1104)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, userJSON(u))
	}
}

// NewMeSitesHandler lista los sites del usuario con su consented_at y, si
// el User Data Store está configurado, los datos y el schema por site. Un
// downstream caído degrada el listado (se omiten los datos), no lo corta.
func NewMeSitesHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo GET", 1000)
			return
		}
		ctx := r.Context()
		userID := middlewares.GetUserID(ctx)
		if userID == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "login_required", "se requiere sesión autenticada", 1113)
			return
		}
		u, err := c.Store.GetUserByID(ctx, userID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo cargar la cuenta", 1003)
			return
		}
		if u.Blocked {
			httpx.WriteError(w, http.StatusForbidden, "account_blocked", "la cuenta está desactivada", 1104)
			return
		}

		sites, err := c.Store.ListUserSites(ctx, userID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudieron listar los sites", 1003)
			return
		}

		out := make([]map[string]any, 0, len(sites))
		for _, us := range sites {
			entry := map[string]any{
				"site_id":    us.SiteID,
				"created_at": us.CreatedAt,
			}
			if us.ConsentedAt != nil {
				entry["consented_at"] = *us.ConsentedAt
			}
			if site, err := c.Store.GetSiteByID(ctx, us.SiteID); err == nil {
				entry["name"] = site.Name
				entry["domain"] = site.Domain
			}
			if c.UserDataStore != nil {
				if d, err := c.UserDataStore.UserSiteDataRead(ctx, userID, us.SiteID); err == nil {
					entry["data"] = d.Data
				} else {
					logger.From(ctx).Warn("datos por site irrecuperables",
						logger.SiteID(us.SiteID), logger.Err(err))
				}
				if schemas, err := c.UserDataStore.SiteDataSchemaList(ctx, us.SiteID); err == nil {
					entry["schema"] = schemas
				}
			}
			out = append(out, entry)
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"sites": out})
	}
}

type profileEditRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Nickname  *string `json:"nickname"`
	Gender    *string `json:"gender"`
	BirthDate *string `json:"birth_date"` // YYYY-MM-DD, vacío la borra
	Country   *string `json:"country"`
	Email     *string `json:"email"`
	Msisdn    *string `json:"msisdn"`
}

func NewProfileEditHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "solo POST", 1000)
			return
		}
		ctx := r.Context()
		userID := middlewares.GetUserID(ctx)
		if userID == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "login_required", "se requiere sesión autenticada", 1113)
			return
		}

		var req profileEditRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}

		u, err := c.Store.GetUserByID(ctx, userID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo cargar la cuenta", 1003)
			return
		}
		if u.Blocked {
			httpx.WriteError(w, http.StatusForbidden, "account_blocked", "la cuenta está desactivada", 1104)
			return
		}

		emailChanged := false
		if req.FirstName != nil {
			u.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			u.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.Nickname != nil {
			u.Nickname = strings.TrimSpace(*req.Nickname)
		}
		if req.Gender != nil {
			u.Gender = strings.TrimSpace(*req.Gender)
		}
		if req.Country != nil {
			u.Country = strings.ToUpper(strings.TrimSpace(*req.Country))
		}
		if req.BirthDate != nil {
			bd := strings.TrimSpace(*req.BirthDate)
			if bd == "" {
				u.BirthDate = nil
			} else {
				d, err := time.Parse("2006-01-02", bd)
				if err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "birth_date inválida (YYYY-MM-DD)", 1002)
					return
				}
				u.BirthDate = &d
			}
		}
		if req.Email != nil {
			e := strings.TrimSpace(strings.ToLower(*req.Email))
			if e != "" && !validation.ValidEmail(e) {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_email", "email inválido", 1105)
				return
			}
			emailChanged = u.Email == nil || *u.Email != e
			if e == "" {
				u.Email = nil
			} else {
				u.Email = &e
			}
		}
		if req.Msisdn != nil {
			m := strings.TrimSpace(*req.Msisdn)
			if m != "" && !validation.ValidMsisdn(m) {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_msisdn", "msisdn inválido (E.164 sin '+')", 1106)
				return
			}
			if m == "" {
				u.Msisdn = nil
			} else {
				u.Msisdn = &m
			}
		}

		if err := c.Store.SaveUser(ctx, u); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo guardar la cuenta", 1003)
			return
		}

		if emailChanged && u.Email != nil {
			if err := email.EnqueueVerification(ctx, c.Queue, u.ID, *u.Email); err != nil {
				logger.From(ctx).Error("no se pudo encolar el mail de verificación",
					logger.UserID(u.ID), logger.Err(err))
			}
		}

		httpx.WriteJSON(w, http.StatusOK, userJSON(u))
	}
}
