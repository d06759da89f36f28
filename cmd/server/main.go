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

	"golang.org/x/sync/errgroup"

	"sessionhub/internal/auth"
	"sessionhub/internal/config"
	"sessionhub/internal/httpapi"
	"sessionhub/internal/hub"
	"sessionhub/internal/metrics"
	"sessionhub/internal/query"
	"sessionhub/internal/store"
	"sessionhub/internal/ws"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in internal/hub and
// friends.
func main() {
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Env),
	}))
	slog.SetDefault(logger)

	if cfg.UsingDevSecret() {
		logger.Warn("JWT_SECRET is unset, using the built-in development secret")
	}
	if cfg.JWTAlgorithm != "HS256" {
		logger.Warn("unsupported JWT_ALGORITHM, falling back to HS256", "requested", cfg.JWTAlgorithm)
	}

	m := metrics.New()

	st := buildStore(cfg, logger, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer := store.NewWriter(st, 256, logger)
	registry := hub.NewRegistry(ctx, st, writer, m, logger)

	verifier := auth.NewVerifier(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   "sessionhub",
		Lifetime: cfg.JWTExpiration,
	})

	surface := query.New(registry, st)
	protocol := ws.NewHandler(registry, verifier, m, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Verifier:        verifier,
		Surface:         surface,
		ProtocolHandler: protocol,
		CORSOrigins:     cfg.CORSOrigins(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting sessionhub", "addr", cfg.Addr, "env", cfg.Env, "persistence", st.Enabled())

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := writer.Run(gCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("sessionhub stopped")
}

// buildStore connects the Redis-backed store, degrading to a disabled store
// when REDIS_URL is unset or the backend is unreachable. The degradation is
// logged once here; the hub never branches on it again.
func buildStore(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) store.Store {
	client, err := store.NewRedisClient(store.RedisConfig{URL: cfg.RedisURL})
	if err != nil {
		logger.Warn("persistence backend unreachable, continuing without it", "error", err)
		return store.NewNoopStore()
	}
	if client == nil {
		logger.Info("no persistence backend configured")
		return store.NewNoopStore()
	}
	return store.NewRedisStore(client, logger, m)
}

func logLevel(env string) slog.Level {
	if env == "production" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
