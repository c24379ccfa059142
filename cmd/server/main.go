package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	accountrepo "marketplace-auth/internal/account/repository"
	"marketplace-auth/internal/authsvc"
	"marketplace-auth/internal/config"
	"marketplace-auth/internal/db"
	"marketplace-auth/internal/events"
	"marketplace-auth/internal/faststore"
	"marketplace-auth/internal/httpapi"
	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/rateguard"
	"marketplace-auth/internal/security"
	"marketplace-auth/internal/session/cache"
	sessionrepo "marketplace-auth/internal/session/repository"
	sessionsvc "marketplace-auth/internal/session/service"
	"marketplace-auth/internal/telemetry/otel"
	"marketplace-auth/internal/verification"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := otel.NewProvider(ctx, cfg.OTLPEndpoint, "marketplace-auth", cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	tracing.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("trace provider shutdown failed", "err", err)
		}
	}()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := faststore.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer store.Close()

	accessSecret, refreshSecret, err := security.DeriveTokenSecrets([]byte(cfg.TokenSecret))
	if err != nil {
		return err
	}
	tokens := security.NewTokenProvider(
		accessSecret, refreshSecret,
		cfg.TokenIssuer, cfg.TokenAudience,
		cfg.AccessTTL(), cfg.RefreshTTL(),
	)

	accounts := accountrepo.NewPostgresRepository(pool)
	sessions := sessionrepo.NewPostgresRepository(pool)
	manager := sessionsvc.NewManager(sessions, cache.New(store, log), tokens, log, cfg.MaxSessionsPerAccount)

	guard := rateguard.New(store, log)
	verify := verification.NewService(store, guard, nil, log, verification.Config{
		SendMax:  cfg.CodeSendMax,
		CheckMax: cfg.CodeCheckMax,
	})

	emitter := events.NewKafkaEmitter(cfg.KafkaBrokersList(), cfg.KafkaTopic)
	if emitter != nil {
		defer func() {
			if err := emitter.Close(); err != nil {
				log.Warn("event writer close failed", "err", err)
			}
		}()
	}

	svc := authsvc.NewService(verify, identity.NewResolver(accounts, log), accounts, manager, tokens, emitter, log)

	go manager.RunSweeper(ctx, cfg.SweepInterval())

	ready := func(ctx context.Context) error {
		return db.Ping(ctx, pool, 2*time.Second)
	}
	handler := httpapi.NewHandler(log, svc, httpapi.NewMetrics(prometheus.DefaultRegisterer), ready, cfg.TrustProxy)
	mux := http.NewServeMux()
	handler.Register(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("http server stopped")
	return nil
}
