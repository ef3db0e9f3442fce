package main

import (
	"errors"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sbaj179/School-Connect-2/internal/config"
	"github.com/sbaj179/School-Connect-2/internal/db/migrate"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg := config.Load()
	err := migrate.Run(cfg.DatabaseURL, *direction)
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("schema already up to date")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Str("direction", *direction).Msg("migration applied")
}
