package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/config"
	"github.com/mcdev12/quizhall/go/internal/dbconfig"
	"github.com/mcdev12/quizhall/go/internal/matchlog"
)

type recorderConfig struct {
	NATSURL  string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Consumer string `env:"MATCHLOG_CONSUMER" envDefault:"matchlog-recorder"`
	DB       dbconfig.Config
}

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg recorderConfig
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", cfg.DB.Host).
		Int("port", cfg.DB.Port).
		Str("database", cfg.DB.Database).
		Msg("connected to database")

	recorder := matchlog.NewRecorder(pool)
	if err := recorder.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("prepare schema")
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("quizhall-matchlog"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to NATS")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream context")
	}
	streamCfg := matchlog.DefaultStreamConfig()
	if err := matchlog.EnsureStream(ctx, js, streamCfg); err != nil {
		log.Fatal().Err(err).Msg("ensure match stream")
	}

	consumerCfg := matchlog.DefaultConsumerConfig()
	consumerCfg.StreamName = streamCfg.StreamName
	consumerCfg.ConsumerName = cfg.Consumer
	consumer, err := matchlog.NewConsumer(ctx, js, recorder, consumerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create match consumer")
	}

	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("match consumer exited unexpectedly")
		os.Exit(1)
	}
	log.Info().Msg("graceful shutdown complete")
}
