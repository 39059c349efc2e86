package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-storefront-auth"
	"github.com/goliatone/go-storefront-auth/config"
	"github.com/goliatone/go-storefront-auth/events"
	"github.com/goliatone/go-storefront-auth/metrics"
	"github.com/goliatone/go-storefront-auth/middleware/csrf"
	"github.com/goliatone/go-storefront-auth/notify"
	"github.com/goliatone/go-storefront-auth/social"
	"github.com/goliatone/go-storefront-auth/social/providers/github"
	"github.com/goliatone/go-storefront-auth/social/providers/google"
	"github.com/goliatone/go-storefront-auth/store"
	"github.com/goliatone/go-storefront-auth/storefront"
	"github.com/goliatone/go-storefront-auth/views"
)

type App struct {
	config   *config.Config
	logger   auth.Logger
	db       *bun.DB
	store    *store.Store
	registry *storefront.Registry
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	bus      *events.Bus
	redis    redis.UniversalClient
	gateway  auth.NotificationGateway
	throttle *notify.Throttle
	external auth.ExternalAuthenticator
	srv      *fiber.App
}

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg.Stores))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: auth.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), "AUTH"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	steps := []func(context.Context, *App) error{
		WithPersistence,
		WithMetrics,
		WithEvents,
		WithNotifications,
		WithExternalLogin,
		WithHTTPServer,
	}
	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			app.logger.Error("startup: %v", err)
			app.Close()
			os.Exit(1)
		}
	}

	go app.throttle.Run(ctx, time.Minute)

	go func() {
		if err := app.srv.Listen(cfg.Server.Addr); err != nil {
			app.logger.Error("http server: %v", err)
			cancel()
		}
	}()

	select {
	case sig := <-exitSignal():
		app.logger.Info("received %s, shutting down", sig)
	case <-ctx.Done():
	}

	if err := app.srv.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		app.logger.Error("http shutdown: %v", err)
	}
	cancel()
	app.Close()
}

// Close drains the event bus before releasing its sinks
func (a *App) Close() {
	a.bus.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := store.Open(app.config.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	app.db = db

	if err := store.CreateSchema(ctx, db); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	opts := append(app.config.StoreOptions(), store.WithLogger(app.logger))
	app.store = store.New(db, []byte(app.config.Identity.TokenKey), opts...)

	registry, err := app.config.Registry()
	if err != nil {
		return err
	}
	app.registry = registry
	return nil
}

func WithMetrics(_ context.Context, app *App) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.NewCollector(reg)
	app.gatherer = reg
	return nil
}

func WithEvents(ctx context.Context, app *App) error {
	app.bus = events.NewBus(events.DefaultConfig(), app.logger)
	app.bus.Subscribe("*", events.NewLogHandler(app.logger))
	app.bus.Subscribe("*", func(_ context.Context, event auth.DomainEvent) error {
		app.metrics.RecordEvent(event.EventName())
		return nil
	})
	app.metrics.WatchDropped("event_bus", app.bus.Dropped)

	rcfg := app.config.Redis
	if rcfg.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		app.logger.Warn("redis %s unreachable, events stay local: %v", rcfg.Addr, err)
		_ = client.Close()
		return nil
	}

	app.redis = client
	app.bus.Subscribe("*", events.NewRedisHandler(client, rcfg.Channel))
	return nil
}

func WithNotifications(_ context.Context, app *App) error {
	renderer := notify.DefaultRenderer()
	logGateway := &notify.LogGateway{Renderer: renderer, Logger: app.logger}

	router := notify.NewRouter()

	if app.config.SMTP.Host != "" {
		router.Handle(auth.ChannelEmail, notify.NewSMTPGateway(app.config.SMTP, renderer, app.logger))
	} else {
		app.logger.Warn("smtp host not configured, emails are logged")
		router.Handle(auth.ChannelEmail, logGateway)
	}

	if app.config.SMS.Endpoint != "" {
		router.Handle(auth.ChannelSMS, notify.NewSMSWebhookGateway(app.config.SMS, renderer, app.logger))
	} else {
		app.logger.Warn("sms endpoint not configured, messages are logged")
		router.Handle(auth.ChannelSMS, logGateway)
	}

	app.throttle = notify.NewThrottle(router, app.config.ThrottleConfig(), app.logger)
	app.gateway = notify.Observe(app.throttle, app.metrics)
	return nil
}

func WithExternalLogin(_ context.Context, app *App) error {
	scfg := app.config.Social

	var providers []social.Option
	if scfg.Google.Enabled() {
		gcfg := google.Config{
			ClientID:     scfg.Google.ClientID,
			ClientSecret: scfg.Google.ClientSecret,
			Scopes:       scfg.Google.Scopes,
		}
		verifier, err := google.NewIDTokenVerifier(scfg.Google.JWKSURL, scfg.Google.ClientID)
		if err != nil {
			app.logger.Warn("google id_token verification disabled: %v", err)
		} else {
			gcfg.Verifier = verifier
		}
		providers = append(providers, social.WithProvider(google.New(gcfg)))
	}

	if scfg.GitHub.Enabled() {
		providers = append(providers, social.WithProvider(github.New(github.Config{
			ClientID:     scfg.GitHub.ClientID,
			ClientSecret: scfg.GitHub.ClientSecret,
			Scopes:       scfg.GitHub.Scopes,
		})))
	}

	if len(providers) == 0 {
		return nil
	}

	sealer, err := social.NewAEADSealer(scfg.StateSecret, scfg.StateTTL)
	if err != nil {
		return fmt.Errorf("external login state: %w", err)
	}
	authenticator := social.NewAuthenticator(sealer, append(providers, social.WithLogger(app.logger))...)
	authenticator.TrustUnverifiedEmail = scfg.TrustUnverifiedEmail

	app.logger.Info("external login providers: %v", authenticator.Providers())
	app.external = authenticator
	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	cfg := app.config
	urls := storefront.PathURLBuilder{DefaultStoreID: app.registry.Default().ID}

	orchestrator := auth.NewOrchestrator(app.store, urls).
		WithNotificationGateway(app.gateway).
		WithEventBus(app.bus).
		WithFlowRecorder(app.metrics).
		WithResetGateway(cfg.Identity.ResetGateway).
		WithEmailConfirmation(cfg.Identity.SendEmailConfirmation).
		WithLogger(app.logger)
	if app.external != nil {
		orchestrator.WithExternalAuthenticator(app.external)
	}

	session := auth.NewSessionManager(cfg).WithLogger(app.logger)

	challenge := auth.NewChallengePolicy(urls, session)
	challenge.Logger = app.logger

	controller := auth.NewAccountController(orchestrator, session, challenge)
	controller.Logger = app.logger
	controller.Debug = cfg.Debug

	var csrfKey []byte
	if cfg.CSRF.SecureKey != "" {
		csrfKey = []byte(cfg.CSRF.SecureKey)
	} else {
		app.logger.Warn("csrf secure key not configured, tokens do not survive restarts")
	}

	srv := fiber.New(fiber.Config{
		Views:                 views.New(),
		ViewsLayout:           views.Layout,
		ErrorHandler:          challenge.ErrorHandler(nil),
		DisableStartupMessage: true,
	})

	srv.Use(recover.New())
	srv.Use(app.metrics.Middleware())
	srv.Get(cfg.Server.MetricsPath, metrics.Handler(app.gatherer))

	srv.Use(storefront.Middleware(app.registry))
	srv.Use(session.Middleware(app.store))
	srv.Use(csrf.New(csrf.Config{
		SecureKey:    csrfKey,
		Expiration:   cfg.CSRF.Expiration,
		ExemptPaths:  cfg.CSRF.ExemptPaths,
		CookieSecure: cfg.Session.CookieSecure,
		ContextKey:   controller.CSRFContextKey,
	}))

	controller.Register(srv, nil)

	app.srv = srv
	return nil
}

func exitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
