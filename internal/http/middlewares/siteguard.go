package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropDatabas3/portero/internal/clients/accesscontrol"
	"github.com/dropDatabas3/portero/internal/http/errorpage"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/session"
	"github.com/dropDatabas3/portero/internal/store/core"
)

// SiteResolver resuelve el site de un client contra Access Control, que es
// el dueño del estado activo/inactivo.
type SiteResolver interface {
	SiteForClient(ctx context.Context, clientRef string) (*accesscontrol.Site, error)
}

// ClientRefReader resuelve el id interno de un client a partir del token externo.
type ClientRefReader interface {
	GetClientByClientID(ctx context.Context, clientID string) (*core.Client, *core.Site, error)
}

// WithSiteGuard bloquea GETs al endpoint de autorización cuando el site del
// client está desactivado: 403 con página renderizada en vez de dejar
// avanzar al login. Un client sin site es un error de configuración y se
// responde 500, nunca se deja pasar.
func WithSiteGuard(resolver SiteResolver, clients ClientRefReader, authorizePath string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != authorizePath {
				next.ServeHTTP(w, r)
				return
			}
			clientID := r.URL.Query().Get("client_id")
			if clientID == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			s := GetSession(ctx)
			clientRef := ""
			if s != nil {
				clientRef = s.GetExtraString(session.ExtraClientRef)
			}

			// El link de vuelta sale de la sesión si el flujo ya validó al
			// client; si el lookup fresco lo trae, se usa ese.
			var cl *core.Client
			render := func(status int, message string) {
				d := flowErrorData(s, message)
				if d.BackURL == "" && cl != nil {
					d.BackURL = cl.WebsiteURL
					if d.BackURL == "" {
						d.BackURL = cl.ClientURI
					}
					if d.BackURL != "" && cl.Name != "" {
						d.BackLabel = "Volver a " + cl.Name
					}
				}
				errorpage.Render(w, status, d)
			}

			if clientRef == "" {
				found, _, err := clients.GetClientByClientID(ctx, clientID)
				if err != nil {
					if errors.Is(err, core.ErrNotFound) {
						// El validador del flujo ya responde por clients
						// desconocidos; acá no duplicamos esa respuesta.
						next.ServeHTTP(w, r)
						return
					}
					logger.From(ctx).Error("lookup de client falló", logger.Err(err))
					render(http.StatusInternalServerError, "No pudimos procesar la solicitud. Intentá nuevamente más tarde.")
					return
				}
				cl = found
				clientRef = cl.ID
			}

			site, err := resolver.SiteForClient(ctx, clientRef)
			if err != nil {
				// Sin site para el client: fail-fast, es un bug de
				// provisioning y dejarlo pasar sería permisivo.
				logger.From(ctx).Error("site del client irresoluble",
					logger.ClientID(clientID), logger.Err(err))
				render(http.StatusInternalServerError, "La aplicación no está configurada correctamente.")
				return
			}
			if !site.Active {
				logger.From(ctx).Warn("authorize para site desactivado",
					logger.ClientID(clientID), logger.SiteID(site.ID))
				render(http.StatusForbidden, "El sitio que intenta autenticarte está desactivado.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
