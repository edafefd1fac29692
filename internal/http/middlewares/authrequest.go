package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/portero/internal/http/errorpage"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/oidc"
	"github.com/dropDatabas3/portero/internal/session"
)

// AuthRequestConfig configura el middleware de authorization requests.
type AuthRequestConfig struct {
	Validator *oidc.Validator
	// Paths donde corre la máquina de estados (login, registro, authorize,
	// edición de perfil). El header de theme se setea SIEMPRE, esté o no
	// el path acá.
	Paths []string
}

// WithAuthRequest intercepta GETs a los paths del flujo de autorización:
// persiste el theme, aplica la regla same-domain para redirect_uri sin
// client_id, valida (client_id, redirect_uri) contra el registro cacheando
// el resultado en sesión, y deja el redirect vigente en la sesión para los
// handlers.
//
// La cache de validación evita re-consultar el client en cada GET del mismo
// flujo: sólo se valida cuando la redirect_uri difiere del marker guardado.
func WithAuthRequest(cfg AuthRequestConfig) Middleware {
	whitelist := make(map[string]bool, len(cfg.Paths))
	for _, p := range cfg.Paths {
		whitelist[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := GetSession(r.Context())
			if s == nil || r.Method != http.MethodGet || !whitelist[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			q := r.URL.Query()
			onDomain := refererOnDomain(r)

			// Theme: el query param manda; si no está, se intenta recuperar
			// del next= (un nivel). Off-domain sin theme ⇒ se limpia para no
			// arrastrar el theme de un flujo ajeno.
			if layer := themeFromRequest(q); layer != "" {
				s.SetExtra(session.ExtraTheme, layer)
			} else if !onDomain {
				s.DeleteExtra(session.ExtraTheme)
			}

			// El idioma elegido sobrevive al flujo (no es una FlowKey): las
			// páginas de error y las vistas lo leen de la sesión.
			if lang := q.Get("lang"); lang != "" {
				s.SetExtra(session.ExtraLanguage, lang)
			}

			redirectURI := q.Get("redirect_uri")
			clientID := q.Get("client_id")

			// redirect_uri sin client_id: sólo destinos same-domain.
			if redirectURI != "" && clientID == "" {
				if err := oidc.CheckSameDomain(redirectURI, r.Host); err != nil {
					logger.From(r.Context()).Warn("redirect_uri off-domain sin client_id",
						logger.RedirectURI(redirectURI))
					errorpage.Render(w, http.StatusBadRequest,
						flowErrorData(s, "El parámetro client_id es obligatorio para redirigir fuera de este dominio."))
					return
				}
			}

			// Validación con cache en sesión: sólo si la URI cambió respecto
			// del marker ya validado.
			if redirectURI != "" && clientID != "" &&
				redirectURI != s.GetExtraString(session.ExtraValidatedURI) {
				if !validateAndCache(r.Context(), w, cfg.Validator, s, clientID, redirectURI) {
					return
				}
			}

			// La redirect vigente se (re)escribe siempre que venga, haya
			// corrido la validación este request o no.
			if redirectURI != "" {
				s.SetExtra(session.ExtraRedirectURI, redirectURI)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validateAndCache corre el validador y persiste los datos del client en la
// sesión. Retorna false si ya respondió con una página de error.
func validateAndCache(ctx context.Context, w http.ResponseWriter, v *oidc.Validator, s *session.Session, clientID, redirectURI string) bool {
	cl, site, err := v.Validate(ctx, clientID, redirectURI)
	if err != nil {
		switch {
		case errors.Is(err, oidc.ErrRedirectURIMismatch):
			logger.From(ctx).Warn("redirect_uri no registrada",
				logger.ClientID(clientID), logger.RedirectURI(redirectURI))
			errorpage.Render(w, http.StatusInternalServerError,
				flowErrorData(s, "La dirección de retorno no coincide con las registradas para esta aplicación."))
		case errors.Is(err, oidc.ErrClientNotFound), errors.Is(err, oidc.ErrClientInactive):
			logger.From(ctx).Warn("client inválido en authorization request",
				logger.ClientID(clientID), logger.Err(err))
			errorpage.Render(w, http.StatusInternalServerError,
				flowErrorData(s, "La aplicación que te envió acá no está registrada o fue dada de baja."))
		default:
			// ErrSiteNotFound u otro error interno: provisioning/infra.
			logger.From(ctx).Error("validación de authorization request falló",
				logger.ClientID(clientID), logger.Err(err))
			errorpage.Render(w, http.StatusInternalServerError,
				flowErrorData(s, "No pudimos procesar la solicitud. Intentá nuevamente más tarde."))
		}
		return false
	}

	// Cachear datos del client para las vistas + marker de validación.
	// El doble write (redirect vigente + marker) evita revalidar la misma
	// URI en los GETs siguientes del flujo.
	s.SetExtra(session.ExtraClientName, cl.Name)
	s.SetExtra(session.ExtraClientURI, cl.ClientURI)
	s.SetExtra(session.ExtraClientTerms, cl.TermsURL)
	s.SetExtra(session.ExtraClientWeb, cl.WebsiteURL)
	s.SetExtra(session.ExtraClientRef, cl.ID)
	s.SetExtra(session.ExtraClientID, cl.ClientID)
	s.SetExtra(session.ExtraSiteID, site.ID)
	s.SetExtra(session.ExtraRedirectURI, redirectURI)
	s.SetExtra(session.ExtraValidatedURI, redirectURI)
	return true
}

// flowErrorData arma el contexto de una página de error del flujo con lo
// que la sesión ya sabe: theme, idioma y el link de vuelta al site de
// origen. Sin client conocido en sesión no hay link, sólo el mensaje.
func flowErrorData(s *session.Session, message string) errorpage.Data {
	d := errorpage.Data{Message: message}
	if s == nil {
		return d
	}
	d.Theme = s.GetExtraString(session.ExtraTheme)
	d.Lang = s.GetExtraString(session.ExtraLanguage)
	d.BackURL = s.GetExtraString(session.ExtraClientWeb)
	if d.BackURL == "" {
		d.BackURL = s.GetExtraString(session.ExtraClientURI)
	}
	if name := s.GetExtraString(session.ExtraClientName); d.BackURL != "" && name != "" {
		d.BackLabel = "Volver a " + name
	}
	return d
}

// refererOnDomain compara el host del referer contra el host actual.
// Sin referer se asume off-domain.
func refererOnDomain(r *http.Request) bool {
	ref := r.Referer()
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return strings.EqualFold(stripPort(u.Host), stripPort(r.Host))
}

// themeFromRequest busca el theme en ?theme= (o su alias histórico ?layer=)
// y, si no está, dentro del query del ?next= (un nivel de profundidad, sin
// recursión).
func themeFromRequest(q url.Values) string {
	if t := themeParam(q); t != "" {
		return t
	}
	next := q.Get("next")
	if next == "" {
		return ""
	}
	nu, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return themeParam(nu.Query())
}

func themeParam(q url.Values) string {
	if t := q.Get("theme"); t != "" {
		return t
	}
	return q.Get("layer")
}

func stripPort(h string) string {
	if i := strings.LastIndex(h, ":"); i > 0 && !strings.Contains(h[i:], "]") {
		return h[:i]
	}
	return h
}
