// portero — servicio de autenticación centralizada (login OIDC multi-site).
//
// Subcomandos:
//
//	serve         levanta el servidor HTTP (con worker embebido)
//	worker        corre sólo el worker de tasks (deploys con cola redis)
//	migrate       aplica las migraciones SQL (up | down [steps])
//	print-config  muestra la config efectiva (secretos redactados)
//	admin         operaciones por CLI (user-delete)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/portero/internal/config"
	porthttp "github.com/dropDatabas3/portero/internal/http"
	"github.com/dropDatabas3/portero/internal/http/handlers"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/rate"
)

func main() {
	// .env es opcional; las env vars del sistema siempre mandan.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:           "portero",
		Short:         "Servicio de autenticación centralizada",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.example.yaml", "path del YAML de configuración")

	loadConfig := func() (*config.Config, error) {
		if _, err := os.Stat(configPath); err != nil {
			// Sin YAML: config sólo por env.
			return config.LoadFromEnv()
		}
		return config.Load(configPath)
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newWorkerCmd(loadConfig),
		newMigrateCmd(loadConfig),
		newPrintConfigCmd(loadConfig),
		newAdminCmd(loadConfig),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "portero"})
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Cleanup()

			metricsHandler, err := porthttp.RegisterMetrics(porthttp.MetricsConfig{
				Pool: func() *pgxpool.Pool { return rt.Pool },
			})
			if err != nil {
				return fmt.Errorf("metrics: %w", err)
			}

			c := rt.Container
			routerCfg := porthttp.RouterConfig{
				Sessions:  c.Sessions,
				Validator: c.Validator,
				Handlers: porthttp.Handlers{
					Login:       handlers.NewLoginHandler(c),
					Register:    handlers.NewRegisterHandler(c),
					Logout:      handlers.NewLogoutHandler(c),
					VerifyEmail: handlers.NewVerifyEmailHandler(c),

					Authorize:     handlers.NewAuthorizeHandler(c),
					Token:         handlers.NewTokenHandler(c),
					ConsentInfo:   handlers.NewConsentInfoHandler(c),
					ConsentAccept: handlers.NewConsentAcceptHandler(c),

					Me:          handlers.NewMeHandler(c),
					MeSites:     handlers.NewMeSitesHandler(c),
					ProfileEdit: handlers.NewProfileEditHandler(c),
					FlowInfo:    handlers.NewFlowInfoHandler(c),

					AdminUserGet:          handlers.NewAdminUserGetHandler(c),
					AdminUserDelete:       handlers.NewAdminUserDeleteHandler(c),
					AdminClientsList:      handlers.NewAdminClientsListHandler(c),
					AdminInvitationsPurge: handlers.NewAdminInvitationsPurgeHandler(c),

					Readyz:  handlers.NewReadyzHandler(c),
					Metrics: metricsHandler,
				},
			}
			if c.AccessControl != nil {
				routerCfg.SiteResolver = c.AccessControl
				routerCfg.Clients = c.Store
			}
			if cfg.Rate.Enabled {
				if rt.Redis != nil {
					routerCfg.LoginLimiter = rate.NewRedisLimiter(rt.Redis, "rl:login",
						cfg.Rate.Login.Limit, config.MustDuration(cfg.Rate.Login.Window))
					routerCfg.RegisterLimiter = rate.NewRedisLimiter(rt.Redis, "rl:register",
						cfg.Rate.Register.Limit, config.MustDuration(cfg.Rate.Register.Window))
				} else {
					routerCfg.LoginLimiter = rate.NewMemoryLimiter(
						cfg.Rate.Login.Limit, config.MustDuration(cfg.Rate.Login.Window))
					routerCfg.RegisterLimiter = rate.NewMemoryLimiter(
						cfg.Rate.Register.Limit, config.MustDuration(cfg.Rate.Register.Window))
				}
			}

			srv := porthttp.NewServer(cfg.Server.Addr, porthttp.NewRouter(routerCfg))

			g, gctx := errgroup.WithContext(ctx)

			// Worker embebido: obligatorio con cola en memoria, inofensivo
			// con redis (consume de la misma cola que los workers externos).
			pool := buildWorkerPool(rt)
			g.Go(func() error { return pool.Run(gctx) })

			g.Go(func() error {
				logger.Named("serve").Info("escuchando", logger.String("addr", cfg.Server.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Named("serve").Info("drenando conexiones")
				return porthttp.Shutdown(srv, shutdownTimeout)
			})

			return g.Wait()
		},
	}
}

func newWorkerCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Corre el worker de tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "portero-worker"})
			defer func() { _ = logger.Sync() }()

			if cfg.Tasks.Kind != "redis" {
				return fmt.Errorf("worker standalone requiere tasks.kind=redis (la cola memory vive dentro de serve)")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Cleanup()

			logger.Named("worker").Info("consumiendo tasks",
				logger.String("queue", cfg.Tasks.QueueKey), logger.Int("concurrency", cfg.Tasks.Concurrency))
			return buildWorkerPool(rt).Run(ctx)
		},
	}
}

func newPrintConfigCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Muestra la configuración efectiva",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.Storage.DSN != "" {
				redacted.Storage.DSN = "<redacted>"
			}
			redacted.SMTP.Password = redact(redacted.SMTP.Password)
			redacted.Security.IDTokenSigningKey = redact(redacted.Security.IDTokenSigningKey)
			redacted.Security.AdminAPIKey = redact(redacted.Security.AdminAPIKey)
			redacted.Downstream.AccessControl.APIKey = redact(redacted.Downstream.AccessControl.APIKey)
			redacted.Downstream.UserDataStore.APIKey = redact(redacted.Downstream.UserDataStore.APIKey)

			out, err := yaml.Marshal(redacted)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "<redacted>"
}
