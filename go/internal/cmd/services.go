package main

import (
	"github.com/mcdev12/quizhall/go/internal/config"
	"github.com/mcdev12/quizhall/go/internal/game"
	"github.com/mcdev12/quizhall/go/internal/game/departure"
	"github.com/mcdev12/quizhall/go/internal/game/executor"
	"github.com/mcdev12/quizhall/go/internal/game/router"
	"github.com/mcdev12/quizhall/go/internal/game/timer"
	"github.com/mcdev12/quizhall/go/internal/gateway"
	"github.com/mcdev12/quizhall/go/internal/session"
)

type Services struct {
	App       *game.App
	Gateway   *gateway.Service
	Scheduler *timer.Scheduler
}

func setupServices(cfg *config.Config, infra *Infrastructure) *Services {
	// Wire up dependency injection chain
	// Store → Repository / Executor / Scheduler → Router → App → Gateway

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.JWTSecret = cfg.JWTSecret
	gw := gateway.NewService(gatewayCfg, infra.NC)

	scheduler := timer.NewScheduler(infra.Store, nil, timer.Config{
		Workers:      cfg.TimerWorkers,
		PollInterval: cfg.TimerPoll,
	})

	execCfg := executor.DefaultConfig()
	execCfg.LockTTL = cfg.LockTTL
	exec := executor.New(executor.NewStoreLocker(infra.Store), nil, execCfg)

	r := router.New()
	deps := game.Deps{
		Sessions:   session.NewRepository(infra.Store, cfg.SessionTTL, nil),
		Packages:   infra.Packages,
		Executor:   exec,
		Timers:     scheduler,
		Router:     r,
		Departures: departure.New(r),
		Emitter:    gw.Emitter(),
		Sweeper:    infra.Sweeper,
	}
	if infra.Publisher != nil {
		deps.Completions = infra.Publisher
	}

	app := game.NewApp(deps, game.Config{
		DefaultRules:    cfg.Rules,
		IdleTimeout:     cfg.IdleTimeout,
		JanitorInterval: cfg.JanitorInterval,
	})
	scheduler.SetExpirer(app)
	gw.Attach(app, gatewayCfg)

	return &Services{
		App:       app,
		Gateway:   gw,
		Scheduler: scheduler,
	}
}
