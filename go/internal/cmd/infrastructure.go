package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/config"
	"github.com/mcdev12/quizhall/go/internal/kvstore"
	"github.com/mcdev12/quizhall/go/internal/matchlog"
	"github.com/mcdev12/quizhall/go/internal/quizpack"
)

// Infrastructure holds the external connections of the process. NC and
// Publisher are nil when running without NATS.
type Infrastructure struct {
	NC        *nats.Conn
	Store     kvstore.Store
	Sweeper   kvstore.Sweeper
	Publisher *matchlog.Publisher
	Packages  quizpack.Provider
	DB        *sql.DB
}

func setupInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{}

	packages, err := setupPackages(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}
	infra.Packages = quizpack.NewCache(packages)

	if cfg.NATSURL == "" {
		log.Warn().Msg("NATS_URL not set, running single-process on the in-memory store")
		store := kvstore.NewMemory(nil)
		infra.Store = store
		infra.Sweeper = store
		return infra, nil
	}

	nc, err := connectNATS(cfg.NATSURL)
	if err != nil {
		infra.Close()
		return nil, err
	}
	infra.NC = nc

	js, err := jetstream.New(nc)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kvCfg := kvstore.DefaultNATSConfig()
	kvCfg.Bucket = cfg.Bucket
	kvCfg.Replicas = cfg.Replicas
	store, err := kvstore.NewNATS(ctx, js, kvCfg)
	if err != nil {
		infra.Close()
		return nil, err
	}
	infra.Store = store
	infra.Sweeper = store

	streamCfg := matchlog.DefaultStreamConfig()
	streamCfg.Replicas = cfg.Replicas
	if err := matchlog.EnsureStream(ctx, js, streamCfg); err != nil {
		infra.Close()
		return nil, err
	}
	infra.Publisher = matchlog.NewPublisher(js, streamCfg.StreamName)
	return infra, nil
}

func setupPackages(ctx context.Context, cfg *config.Config, infra *Infrastructure) (quizpack.Provider, error) {
	if cfg.PackageDir != "" {
		log.Info().Str("dir", cfg.PackageDir).Msg("loading question packages from files")
		return quizpack.NewFiles(cfg.PackageDir), nil
	}
	db, err := setupDatabase(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	infra.DB = db
	return quizpack.NewPostgres(db), nil
}

func connectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("quizhall"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}

func (i *Infrastructure) Close() {
	if i.NC != nil {
		if err := i.NC.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
