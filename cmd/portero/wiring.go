package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/audit"
	"github.com/dropDatabas3/portero/internal/cache"
	"github.com/dropDatabas3/portero/internal/clients/accesscontrol"
	"github.com/dropDatabas3/portero/internal/clients/userdatastore"
	"github.com/dropDatabas3/portero/internal/config"
	"github.com/dropDatabas3/portero/internal/consent"
	"github.com/dropDatabas3/portero/internal/deletion"
	"github.com/dropDatabas3/portero/internal/email"
	"github.com/dropDatabas3/portero/internal/events"
	"github.com/dropDatabas3/portero/internal/jwt"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/oidc"
	"github.com/dropDatabas3/portero/internal/session"
	"github.com/dropDatabas3/portero/internal/store/pg"
	"github.com/dropDatabas3/portero/internal/stream"
	"github.com/dropDatabas3/portero/internal/tasks"
	"github.com/dropDatabas3/portero/internal/validation"
)

// wiring centraliza la construcción del container y del worker pool.
// Todo lo que puede fallar, falla acá, antes de aceptar tráfico.

type runtime struct {
	Container *app.Container
	Pool      *pgxpool.Pool
	Redis     *rdb.Client
	Cleanup   func()
}

// buildRuntime arma el container completo a partir de la config.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	pool, err := pg.NewPool(ctx, pg.PoolConfig{
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: config.MustDuration(cfg.Storage.Postgres.ConnMaxLifetime),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	repo := pg.NewRepo(pool)

	// Un solo cliente redis compartido por cache, cola, limiter y stream.
	var redisClient *rdb.Client
	if cfg.Cache.Redis.Addr != "" {
		redisClient = rdb.NewClient(&rdb.Options{
			Addr: cfg.Cache.Redis.Addr,
			DB:   cfg.Cache.Redis.DB,
		})
	}

	cacheClient, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: config.MustDuration(cfg.Cache.Memory.DefaultTTL),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}

	var queue tasks.Queue
	if cfg.Tasks.Kind == "redis" && redisClient != nil {
		queue = tasks.NewRedisQueue(redisClient, cfg.Tasks.QueueKey)
	} else {
		queue = tasks.NewMemoryQueue(1024)
	}

	var ac *accesscontrol.Client
	if cfg.Downstream.AccessControl.BaseURL != "" {
		ac = accesscontrol.New(
			cfg.Downstream.AccessControl.BaseURL,
			cfg.Downstream.AccessControl.APIKey,
			config.MustDuration(cfg.Downstream.AccessControl.Timeout),
		)
	}
	var uds *userdatastore.Client
	if cfg.Downstream.UserDataStore.BaseURL != "" {
		uds = userdatastore.New(
			cfg.Downstream.UserDataStore.BaseURL,
			cfg.Downstream.UserDataStore.APIKey,
			config.MustDuration(cfg.Downstream.UserDataStore.Timeout),
		)
	}

	bus := events.NewBus()
	emitter := audit.NewEmitter(queue, cfg.OIDC.SelfSiteID)

	// Consent → recorder (sincrónico, los errores cortan el request).
	bus.OnConsent(consent.NewRecorder(repo).Handler())

	// Login/logout → evento de auditoría, fire-and-forget vía cola.
	bus.OnLogin(func(ctx context.Context, e events.LoginSucceeded) error {
		return emitter.Emit(ctx, audit.EventLogin, e.UserID, e.SiteID, e.At)
	})
	bus.OnLogout(func(ctx context.Context, e events.LogoutSucceeded) error {
		return emitter.Emit(ctx, audit.EventLogout, e.UserID, e.SiteID, e.At)
	})

	sessions := session.NewManager(cacheClient, session.Config{
		CookieName: cfg.Auth.Session.CookieName,
		Domain:     cfg.Auth.Session.Domain,
		SameSite:   cfg.Auth.Session.SameSite,
		Secure:     cfg.Auth.Session.Secure,
		TTL:        config.MustDuration(cfg.Auth.Session.TTL),
	})

	c := &app.Container{
		Cfg:            cfg,
		Store:          repo,
		Cache:          cacheClient,
		Sessions:       sessions,
		Validator:      oidc.NewValidator(repo),
		Issuer:         jwt.NewIssuer(cfg.OIDC.Issuer, cfg.Security.IDTokenSigningKey, config.MustDuration(cfg.OIDC.IDTokenTTL)),
		Bus:            bus,
		Queue:          queue,
		AccessControl:  ac,
		UserDataStore:  uds,
		PasswordPolicy: validation.Policy(cfg.Security.PasswordPolicy),
		CodeTTL:        config.MustDuration(cfg.OIDC.CodeTTL),
	}

	cleanup := func() {
		_ = queue.Close()
		_ = cacheClient.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		pool.Close()
	}
	return &runtime{Container: c, Pool: pool, Redis: redisClient, Cleanup: cleanup}, nil
}

// buildWorkerPool registra los handlers de tasks sobre la cola del runtime.
func buildWorkerPool(rt *runtime) *tasks.Pool {
	cfg := rt.Container.Cfg

	var pub stream.Publisher = stream.NopPublisher{}
	if rt.Redis != nil {
		pub = stream.NewRedisPublisher(rt.Redis, cfg.Stream.Name, cfg.Stream.MaxLen)
	}

	var sender email.Sender = email.NopSender{}
	if cfg.SMTP.Host != "" {
		s := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		s.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		sender = s
	}

	publicBase := cfg.OIDC.Issuer
	if publicBase == "" {
		publicBase = "http://" + cfg.Server.PublicHost
	}

	p := tasks.NewPool(rt.Container.Queue, cfg.Tasks.Concurrency, tasks.RetryPolicy{
		MaxRetries: cfg.Tasks.MaxRetries,
		Backoff:    config.MustDuration(cfg.Tasks.Backoff),
	})
	p.Register(audit.TaskPublish, audit.PublishHandler(pub))
	p.Register(email.TaskSendVerification, email.VerificationHandler(sender, rt.Container.Cache, publicBase))

	// El workflow de borrado necesita ambos downstream configurados.
	if rt.Container.UserDataStore != nil && rt.Container.AccessControl != nil {
		orch := deletion.NewOrchestrator(rt.Container.Store, rt.Container.UserDataStore, rt.Container.AccessControl)
		p.Register(deletion.TaskRun, orch.Handler())
	} else {
		logger.Named("wiring").Warn("downstream sin configurar: el workflow de borrado queda deshabilitado")
	}
	return p
}

// shutdownTimeout del drain HTTP en serve.
const shutdownTimeout = 15 * time.Second
