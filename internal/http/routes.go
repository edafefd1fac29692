package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/portero/internal/http/middlewares"
	"github.com/dropDatabas3/portero/internal/oidc"
	"github.com/dropDatabas3/portero/internal/rate"
	"github.com/dropDatabas3/portero/internal/session"
)

// Handlers agrupa los endpoints ya construidos. El router no conoce el
// container: recibe todo armado desde main.
type Handlers struct {
	Login       http.Handler
	Register    http.Handler
	Logout      http.Handler
	VerifyEmail http.Handler

	Authorize     http.Handler
	Token         http.Handler
	ConsentInfo   http.Handler
	ConsentAccept http.Handler

	Me          http.Handler
	MeSites     http.Handler
	ProfileEdit http.Handler
	FlowInfo    http.Handler

	AdminUserGet          http.Handler
	AdminUserDelete       http.Handler
	AdminClientsList      http.Handler
	AdminInvitationsPurge http.Handler

	Readyz  http.Handler
	Metrics http.Handler
}

// RouterConfig junta middlewares y handlers para armar el árbol de rutas.
type RouterConfig struct {
	Sessions  *session.Manager
	Validator *oidc.Validator

	// SiteResolver y Clients alimentan el guard de site activo sobre
	// /v1/oauth/authorize. Ambos nil desactiva el guard.
	SiteResolver middlewares.SiteResolver
	Clients      middlewares.ClientRefReader

	// Limiters opcionales para login y register.
	LoginLimiter    rate.Limiter
	RegisterLimiter rate.Limiter

	Handlers Handlers
}

// authRequestPaths son los GET que arrancan o continúan un flujo de
// autorización y por eso pasan por el middleware de authorization request.
var authRequestPaths = []string{
	"/login", "/register", "/consent", "/profile/edit", "/v1/oauth/authorize",
}

const authorizePath = "/v1/oauth/authorize"

// NewRouter arma el router completo con la cadena de middlewares.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Cadena base: toda request queda identificada, logueada y medida.
	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithLogging())
	r.Use(middlewares.WithRecover())
	r.Use(WithMetrics)

	// Plano server-to-server y operacional: sin sesión.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/readyz", cfg.Handlers.Readyz)
	if cfg.Handlers.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Handlers.Metrics)
	}
	r.Method(http.MethodPost, "/v1/oauth/token", cfg.Handlers.Token)

	r.Route("/v1/admin", func(ar chi.Router) {
		ar.Method(http.MethodGet, "/users/{userID}", cfg.Handlers.AdminUserGet)
		ar.Method(http.MethodGet, "/clients", cfg.Handlers.AdminClientsList)
		ar.Method(http.MethodPost, "/users/{userID}/delete", cfg.Handlers.AdminUserDelete)
		ar.Method(http.MethodPost, "/invitations/purge", cfg.Handlers.AdminInvitationsPurge)
	})

	// Plano browser: sesión + limpieza off-domain + authorization request.
	r.Group(func(br chi.Router) {
		br.Use(middlewares.WithSession(cfg.Sessions))
		br.Use(middlewares.WithOffDomainCleanup())
		br.Use(middlewares.WithAuthRequest(middlewares.AuthRequestConfig{
			Validator: cfg.Validator,
			Paths:     authRequestPaths,
		}))
		br.Use(middlewares.WithThemeHeader())

		login := cfg.Handlers.Login
		if cfg.LoginLimiter != nil {
			login = middlewares.WithRateLimit(cfg.LoginLimiter, middlewares.IPPathRateKey)(login)
		}
		register := cfg.Handlers.Register
		if cfg.RegisterLimiter != nil {
			register = middlewares.WithRateLimit(cfg.RegisterLimiter, middlewares.IPPathRateKey)(register)
		}

		br.Method(http.MethodPost, "/v1/auth/login", login)
		br.Method(http.MethodPost, "/v1/auth/register", register)
		br.Method(http.MethodPost, "/v1/auth/logout", cfg.Handlers.Logout)
		br.Method(http.MethodGet, "/v1/auth/verify-email", cfg.Handlers.VerifyEmail)

		authorize := cfg.Handlers.Authorize
		if cfg.SiteResolver != nil && cfg.Clients != nil {
			authorize = middlewares.WithSiteGuard(cfg.SiteResolver, cfg.Clients, authorizePath)(authorize)
		}
		br.Method(http.MethodGet, authorizePath, authorize)

		br.Method(http.MethodGet, "/v1/oauth/consent", cfg.Handlers.ConsentInfo)
		br.Method(http.MethodPost, "/v1/oauth/consent/accept", cfg.Handlers.ConsentAccept)

		br.Method(http.MethodGet, "/v1/me", cfg.Handlers.Me)
		br.Method(http.MethodGet, "/v1/me/sites", cfg.Handlers.MeSites)
		br.Method(http.MethodPost, "/v1/me/edit", cfg.Handlers.ProfileEdit)

		// Pantallas del flujo: la SPA pega acá para que el middleware de
		// authorization request procese client_id/redirect_uri/layer.
		br.Method(http.MethodGet, "/login", cfg.Handlers.FlowInfo)
		br.Method(http.MethodGet, "/register", cfg.Handlers.FlowInfo)
		br.Method(http.MethodGet, "/profile/edit", cfg.Handlers.FlowInfo)
		br.Method(http.MethodGet, "/consent", cfg.Handlers.ConsentInfo)
	})

	return r
}
