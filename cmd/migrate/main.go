package main

import (
	"context"
	"database/sql"
	"flag"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"directory/internal/adapters/observability"
	"directory/internal/shared"
	mysqlrepo "directory/internal/storage/mysql"
)

func main() {
	command := flag.String("command", "up", "up|down|down-to|reset|status|version")
	version := flag.Int64("version", 0, "target version for down-to")
	flag.Parse()

	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, "migrate")
	cfg.LogWarnings()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	if err := mysqlrepo.Migrate(ctx, db, *command, *version); err != nil {
		log.Fatal().Err(err).Str("command", *command).Msg("migrate failed")
	}
	log.Info().Str("command", *command).Msg("migrate done")
}
