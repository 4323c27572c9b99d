package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "directory/internal/adapters/http_server"
	"directory/internal/adapters/observability"
	redisad "directory/internal/adapters/redis"
	"directory/internal/app"
	"directory/internal/shared"
	mysqlrepo "directory/internal/storage/mysql"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")
	cfg.LogWarnings()

	if cfg.AdminToken == "" && !cfg.IsDev() {
		log.Fatal().Msg("ADMIN_TOKEN must be set outside dev")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	if *migrate {
		if err := mysqlrepo.Migrate(ctx, db, "up", 0); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
	}

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; serving uncached")
	}
	h := &server.Handlers{
		Q: app.NewQueryService(repo, cache, cfg.CacheTTL),
		C: app.NewCommandService(repo, cache),
	}

	// http
	reg := observability.InitRegistry()
	observability.Serve(reg)
	srv := server.New(h, server.Options{
		AdminToken: cfg.AdminToken,
		Metrics:    observability.MetricsHandler(reg),
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
