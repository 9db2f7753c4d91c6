package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"ssfile/internal/config"
	"ssfile/internal/database"
	"ssfile/internal/logging"
	"ssfile/internal/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("setup logging")
	}

	pool, err := database.Connect(context.Background(), cfg)
	if err != nil {
		log.Error().Err(err).Msg("connect database")
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.Apply(context.Background(), pool); err != nil {
		log.Error().Err(err).Msg("apply migrations")
		os.Exit(1)
	}

	log.Info().Msg("migrations applied")
}
