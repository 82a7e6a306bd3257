// Package main is the entry point for the tripbook API server.
// Its sole responsibility is wiring dependencies together and starting the
// server. No business logic belongs here.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"tripbook/internal/config"
	"tripbook/internal/geocode"
	"tripbook/internal/handler"
	"tripbook/internal/middleware"
	"tripbook/internal/notify"
	"tripbook/internal/push"
	"tripbook/internal/store"
	"tripbook/internal/tripsync"
	"tripbook/internal/ws"
	"tripbook/migrations"
)

// maxBodyBytes caps request bodies; itineraries are small JSON documents.
const maxBodyBytes = 1 << 20

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately, the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	if err := migrate(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// --- Domain wiring ----------------------------------------------------
	trips := store.NewTripStore(pool)
	subs := push.NewSubscriptionStore(pool)

	pubKey, privKey := cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey
	if pubKey == "" || privKey == "" {
		pubKey, privKey, err = push.GenerateVAPIDKeys()
		if err != nil {
			slog.Error("failed to generate VAPID keys", "error", err)
			os.Exit(1)
		}
		slog.Warn("VAPID keys not configured; generated a throwaway pair, existing subscriptions will not receive pushes")
	}
	pushSvc := push.NewService(subs, pubKey, privKey, cfg.PushSubscriber, logger)

	scheduler := notify.NewScheduler(pushSvc, pushSvc, logger)
	defer scheduler.Stop()

	sessions := tripsync.NewManager(trips, scheduler, logger)

	var geo handler.Geocoder
	if cfg.MapboxToken != "" {
		geo = geocode.New(cfg.MapboxToken)
	} else {
		slog.Info("MAPBOX_TOKEN not set; steps will not be geocoded")
	}

	wsHandler := ws.NewHandler(sessions, cfg.CORSOrigins, logger)
	server := handler.NewServer(sessions, geo, pushSvc, wsHandler, []byte(cfg.JWTSecret), logger)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID assigns a trace ID, RealIP
	// restores the client address behind a proxy, SlogLogger writes one JSON
	// line per request, Recoverer turns panics into HTTP 500.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(maxBodyBytes))

	r.Mount("/", server.Routes())

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	// WriteTimeout stays generous because websocket connections are
	// long-lived.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// migrate applies pending schema migrations at startup. goose needs a
// database/sql connection, opened separately from the pgx pool.
func migrate(dsn string) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return err
	}
	db := stdlib.OpenDB(*cfg.ConnConfig)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	results, err := provider.Up(context.Background())
	if err != nil {
		return err
	}
	if len(results) > 0 {
		slog.Info("applied migrations", "count", len(results))
	}
	return nil
}
