package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthsafe/internal/adapters/auth/jwtauth"
	notifyamqp "healthsafe/internal/adapters/notify/amqp"
	"healthsafe/internal/adapters/notify/logpub"
	"healthsafe/internal/adapters/notify/webhook"
	pg "healthsafe/internal/adapters/storage/postgres"
	"healthsafe/internal/config"
	"healthsafe/internal/domain/notifications"
	"healthsafe/internal/platform/httpclient"
	"healthsafe/internal/platform/logger"
	"healthsafe/internal/ports/auth"
	"healthsafe/internal/router"
)

// @title healthsafe API
// @version 1.0
// @description Autorización por consentimiento sobre dossiers médicos: grants, pedidos de acceso y auditoría.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()
	log := logger.NewFromEnv()
	if zl, ok := log.(*logger.ZapLogger); ok {
		defer func() { _ = zl.Zap().Sync() }()
	}

	var db *sql.DB
	if cfg.DBDSN != "" {
		opened, err := pg.Open(cfg.DBDSN)
		if err != nil {
			log.Error("db open failed", map[string]any{"err": err})
			os.Exit(1)
		}
		defer opened.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = pg.Migrate(ctx, opened)
		cancel()
		if err != nil {
			log.Error("db migrate failed", map[string]any{"err": err})
			os.Exit(1)
		}
		db = opened
		log.Info("using postgres store", nil)
	} else {
		log.Warn("DB_DSN not set, using in-memory store", nil)
	}

	var verifier auth.AuthVerifier
	switch cfg.Auth.Mode {
	case config.AuthModeJWT:
		if cfg.Auth.JWTSecret == "" {
			log.Error("AUTH_MODE=jwt requires JWT_SECRET", nil)
			os.Exit(1)
		}
		verifier = jwtauth.NewVerifier(cfg.Auth.JWTSecret)
	default:
		log.Warn("auth in dev mode: identity comes from X-Debug-* headers", nil)
	}

	pub, closePub, err := newPublisher(cfg.Notify, log)
	if err != nil {
		log.Error("notification publisher failed", map[string]any{"err": err, "driver": string(cfg.Notify.Driver)})
		os.Exit(1)
	}
	defer func() { _ = closePub() }()

	app := router.New(router.Options{
		AuthVerifier:       verifier,
		DB:                 db,
		Logger:             log,
		CORSAllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := notifications.NewDispatcher(app.Outbox, pub, log.With(map[string]any{"component": "outbox"}))
	go dispatcher.Run(ctx, cfg.Notify.OutboxInterval)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      app.Handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting server", map[string]any{"addr": cfg.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", map[string]any{"err": err})
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", map[string]any{"err": err})
	}
	log.Info("server stopped", nil)
}

func newPublisher(cfg config.NotifyConfig, log logger.Logger) (notifications.Publisher, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case config.NotifyAMQP:
		p, closeFn, err := notifyamqp.Dial(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, err
		}
		return p, closeFn, nil
	case config.NotifyWebhook:
		p, err := webhook.New(httpclient.New(0), cfg.WebhookURL)
		if err != nil {
			return nil, nil, err
		}
		return p, noop, nil
	default:
		return logpub.New(log), noop, nil
	}
}
