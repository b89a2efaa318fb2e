// Command server runs the professional onboarding service: step pages,
// checkout API and billing webhooks.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/prokit/internal/db/migrations"
	"github.com/dmitrymomot/prokit/internal/repository"
	modonboarding "github.com/dmitrymomot/prokit/modules/onboarding"
	"github.com/dmitrymomot/prokit/pkg/billing"
	"github.com/dmitrymomot/prokit/pkg/config"
	"github.com/dmitrymomot/prokit/pkg/email"
	"github.com/dmitrymomot/prokit/pkg/environment"
	"github.com/dmitrymomot/prokit/pkg/file"
	"github.com/dmitrymomot/prokit/pkg/httpserver"
	"github.com/dmitrymomot/prokit/pkg/jwt"
	"github.com/dmitrymomot/prokit/pkg/logger"
	"github.com/dmitrymomot/prokit/pkg/pg"
	"github.com/dmitrymomot/prokit/pkg/redis"
	"github.com/dmitrymomot/prokit/pkg/requestid"
	"github.com/dmitrymomot/prokit/svc/auth"
	"github.com/dmitrymomot/prokit/svc/checkout"
	"github.com/dmitrymomot/prokit/svc/onboarding"
	"github.com/dmitrymomot/prokit/svc/reconcile"
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	Name          string        `env:"APP_NAME" envDefault:"prokit"`
	StorageKind   string        `env:"STORAGE_DRIVER" envDefault:"local"`
	LocalDir      string        `env:"STORAGE_LOCAL_DIR" envDefault:"./uploads"`
	LocalURL      string        `env:"STORAGE_LOCAL_URL" envDefault:"/static/uploads"`
	LockTTL       time.Duration `env:"WEBHOOK_LOCK_TTL" envDefault:"60s"`
	NotifyTimeout time.Duration `env:"WEBHOOK_NOTIFY_TIMEOUT" envDefault:"30s"`
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		app         appConfig
		logCfg      logger.Config
		pgCfg       pg.Config
		redisCfg    redis.Config
		httpCfg     httpserver.Config
		authCfg     auth.Config
		billingCfg  billing.Config
		emailCfg    email.Config
		s3Cfg       file.S3Config
		flowCfg     onboarding.Config
		checkoutCfg checkout.Config
		moduleCfg   modonboarding.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&app) },
		func() error { return config.Load(&logCfg) },
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&authCfg) },
		func() error { return config.Load(&billingCfg) },
		func() error { return config.Load(&emailCfg) },
		func() error { return config.Load(&s3Cfg) },
		func() error { return config.Load(&flowCfg) },
		func() error { return config.Load(&checkoutCfg) },
		func() error { return config.Load(&moduleCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	env := environment.Parse(app.Env)
	opts := []logger.Option{
		logger.WithEnvironment(env, app.Name),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			environment.LoggerExtractor(),
			auth.LoggerExtractor(),
		),
	}
	if logCfg.Level != "" {
		opts = append(opts, logger.WithLevelName(logCfg.Level))
	}
	if logCfg.Format != "" {
		opts = append(opts, logger.WithFormat(logger.Format(logCfg.Format)))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, migrations.FS, ".", pgCfg, log); err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}
	recOpts := []reconcile.Option{reconcile.WithNotifyTimeout(app.NotifyTimeout)}
	if redisCfg.Enabled() {
		rdb, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)})
		recOpts = append(recOpts, reconcile.WithLocker(redis.NewLocker(rdb, "billing:event:", app.LockTTL)))
	} else {
		log.WarnContext(ctx, "redis not configured, webhook deliveries rely on the ledger only")
	}

	provider, err := billing.New(billingCfg)
	if err != nil {
		return err
	}

	assets, err := newStorage(ctx, app, s3Cfg)
	if err != nil {
		return err
	}

	sender, err := email.New(emailCfg, log)
	if err != nil {
		return err
	}
	recOpts = append(recOpts, reconcile.WithNotifier(reconcile.NewEmailNotifier(sender, checkoutCfg.BaseURL)))

	tokens, err := jwt.NewFromString(authCfg.JWTSecret)
	if err != nil {
		return err
	}

	store := repository.NewStore(pool)
	flow := onboarding.NewService(store, assets, flowCfg, log)
	initiator := checkout.NewInitiator(flow, store, provider, checkout.DefaultCatalog(), checkoutCfg, log)
	reconciler := reconcile.New(repository.NewLedgerStore(pool), log, recOpts...)
	defer reconciler.Wait()

	pages := modonboarding.New(flow, initiator, store, moduleCfg, log)

	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		requestid.Middleware,
		environment.Middleware(env),
		middleware.Recoverer,
	)

	r.Get("/health/live", httpserver.HealthHandler(log))
	r.Get("/health/ready", httpserver.HealthHandler(log, checks...))
	r.Post("/api/webhook/"+provider.Name(), reconcile.WebhookHandler(provider, reconciler, log))
	if local, ok := assets.(*file.LocalStorage); ok {
		r.Handle(app.LocalURL+"/*", http.StripPrefix(app.LocalURL, http.FileServer(http.Dir(local.Dir()))))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokens, auth.Extractor(authCfg), log))
		pages.Routes(r)
	})

	log.InfoContext(ctx, "starting server",
		slog.String("addr", httpCfg.Addr),
		logger.Provider(provider.Name()),
		slog.String("storage", app.StorageKind))
	return httpserver.New(httpCfg, log).Run(ctx, r)
}

func newStorage(ctx context.Context, app appConfig, s3Cfg file.S3Config) (file.Storage, error) {
	switch app.StorageKind {
	case "s3":
		return file.NewS3Storage(ctx, s3Cfg)
	case "local", "":
		return file.NewLocalStorage(app.LocalDir, app.LocalURL)
	default:
		return nil, errors.New("unknown STORAGE_DRIVER " + app.StorageKind)
	}
}
