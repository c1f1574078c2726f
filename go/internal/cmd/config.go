package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/config"
)

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())

	log.Info().
		Str("port", cfg.Port).
		Bool("clustered", cfg.NATSURL != "").
		Str("rules_file", cfg.RulesFile).
		Msg("configuration loaded")
	return cfg
}
