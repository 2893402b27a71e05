package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/api"
	"github.com/lalithlochan/courier/internal/backend"
	"github.com/lalithlochan/courier/internal/circuitbreaker"
	"github.com/lalithlochan/courier/internal/config"
	"github.com/lalithlochan/courier/internal/dingtalk"
	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/notify"
	"github.com/lalithlochan/courier/internal/observ"
	"github.com/lalithlochan/courier/internal/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting courier gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	userSettings, err := config.LoadBackends(cfg.SettingsFile)
	if err != nil {
		return fmt.Errorf("failed to load backend settings: %w", err)
	}
	settings := config.MergeDefaults(userSettings, config.BuiltinDefaults())

	ctx := context.Background()

	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := backend.Deps{
		Store:    store,
		Settings: settings,
		Logger:   logger,
	}

	// Redis carries the websocket fan-out and the template cache
	var (
		fanout    *redis.Fanout
		templates notify.TemplateStore = store
		cache     *redis.TemplateCache
	)
	if cfg.RedisHost != "" {
		redisClient, err := redis.New(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, websocket backend and template cache disabled",
				zap.Error(err),
				zap.String("host", cfg.RedisHost),
			)
		} else {
			defer redisClient.Close()
			fanout = redis.NewFanout(redisClient, logger)
			cache = redis.NewTemplateCache(redisClient, store, cfg.TemplateCacheTTL, logger)
			templates = cache
			deps.Publisher = fanout
		}
	}

	mailer, err := newMailer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	deps.Mailer = mailer

	if gw, err := newSMSGateway(ctx, cfg, settings, logger); err != nil {
		logger.Warn("SNS gateway unavailable, SMS notifications disabled", zap.Error(err))
	} else {
		deps.SMS = gw
	}

	// DingTalk calls share one breaker-protected transport
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:            "dingtalk",
		MaxFailures:     cfg.BreakerMaxFailures,
		RecoveryTimeout: cfg.BreakerTimeout,
	}, logger)
	doer := circuitbreaker.NewDoer(&http.Client{Timeout: cfg.HTTPTimeout}, breaker, logger)
	deps.DingTalk = dingtalk.NewPool(dingtalk.Endpoints{
		OAPI: cfg.DingTalkOAPIURL,
		API:  cfg.DingTalkAPIURL,
	}, doer, logger)

	registry := notify.NewRegistry()
	if err := backend.RegisterAll(registry, deps); err != nil {
		return fmt.Errorf("failed to register backends: %w", err)
	}
	dispatcher := notify.NewDispatcher(registry, templates, logger)

	logger.Info("initialized notification backends",
		zap.Strings("backends", registry.IDs()),
		zap.String("mail_transport", cfg.MailTransport),
		zap.Bool("sms_enabled", deps.SMS != nil),
		zap.Bool("websocket_enabled", fanout != nil),
	)

	handler := api.NewHandler(logger, store, store, dispatcher)
	if cache != nil {
		handler.WithTemplateCache(cache)
	}
	if fanout != nil {
		prefix, _ := settings[notify.BackendWebsocket]["group_prefix"].(string)
		handler.WithStreams(api.SubscriberFunc(func(ctx context.Context, group string) (api.Stream, error) {
			sub, err := fanout.Subscribe(ctx, group)
			if err != nil {
				return nil, err
			}
			return sub, nil
		}), backend.GroupName(prefix, ""))
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(api.RequestLogger(logger))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(api.MaxBodyBytes(1 << 20))
			handler.Register(r)
		})
		handler.RegisterStream(r)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
