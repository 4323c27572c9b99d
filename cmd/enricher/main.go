package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"directory/internal/adapters/apify"
	"directory/internal/adapters/firecrawl"
	"directory/internal/adapters/googleplaces"
	"directory/internal/adapters/observability"
	redisad "directory/internal/adapters/redis"
	"directory/internal/app"
	"directory/internal/domain"
	"directory/internal/shared"
	mysqlrepo "directory/internal/storage/mysql"
)

func main() {
	once := flag.Bool("once", false, "drain the queue once and exit")
	category := flag.String("category", "", "restrict to one category (required with -id)")
	id := flag.Int64("id", 0, "enrich a single listing now, queued or not")
	flag.Parse()

	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "enricher")
	cfg.LogWarnings()

	var cats []domain.Category
	if *category != "" {
		c, err := domain.ParseCategory(*category)
		if err != nil {
			log.Fatal().Err(err).Msg("bad -category")
		}
		cats = []domain.Category{c}
	}
	if *id > 0 && len(cats) == 0 {
		log.Fatal().Msg("-id needs -category")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	observability.Serve(observability.InitRegistry())

	svc := app.NewEnrichmentService(repo, places(cfg), scraper(cfg), reviews(cfg), cache, cfg.EnrichReviews)

	if *id > 0 {
		ref := domain.ListingRef{Category: cats[0], ID: *id}
		if err := svc.Enrich(ctx, ref); err != nil {
			log.Error().Err(err).Msg("enrich failed")
			os.Exit(1)
		}
		log.Info().Str("category", string(ref.Category)).Int64("id", ref.ID).Msg("enrich ok")
		return
	}

	w := app.NewWorker(svc, repo, cats, cfg.EnrichWorkers, cfg.EnrichBatch)
	log.Info().
		Int("workers", cfg.EnrichWorkers).
		Int("batch", cfg.EnrichBatch).
		Dur("poll", cfg.EnrichPoll).
		Bool("once", *once).
		Msg("enricher starting")

	if *once {
		n, err := w.Drain(ctx)
		if err != nil {
			log.Fatal().Err(err).Int("claimed", n).Msg("drain failed")
		}
		log.Info().Int("claimed", n).Msg("queue drained")
		return
	}
	if err := w.Run(ctx, cfg.EnrichPoll); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("enricher stopped")
}

// Providers without credentials are left nil; their step is skipped.

func places(cfg shared.Config) domain.PlaceSearcher {
	c, err := googleplaces.New(cfg.PlacesBase, cfg.PlacesKey, cfg.ExternalRPS)
	if err != nil {
		log.Warn().Err(err).Msg("place search disabled")
		return nil
	}
	return c
}

func scraper(cfg shared.Config) domain.Scraper {
	c, err := firecrawl.New(cfg.FirecrawlBase, cfg.FirecrawlKey, cfg.ExternalRPS)
	if err != nil {
		log.Warn().Err(err).Msg("web scraping disabled")
		return nil
	}
	return c
}

func reviews(cfg shared.Config) domain.ReviewExtractor {
	c, err := apify.New(cfg.ApifyBase, cfg.ApifyToken, cfg.ApifyActor, cfg.ExternalRPS)
	if err != nil {
		log.Warn().Err(err).Msg("review extraction disabled")
		return nil
	}
	return c
}
