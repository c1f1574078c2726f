// Package gateway holds client connectivity: websocket sessions, event
// fan-out between processes and the session REST endpoints.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/quizhall/go/internal/events"
)

// Emitter is what the game App publishes through.
type Emitter interface {
	Emit(ctx context.Context, d events.Directive) error
}

// Service is the gateway that handles websocket connections and event
// delivery.
type Service struct {
	connectionManager *ConnectionManager
	fanout            *Fanout
	emitter           Emitter

	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig
	// JWTSecret enables token identity on the websocket handshake and the
	// delete endpoint.
	JWTSecret string
	// Clock drives REST countdown snapshots; nil uses the real clock.
	Clock clockwork.Clock
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService builds the gateway. A nil nc keeps delivery in-process.
func NewService(config Config, nc *nats.Conn) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)
	s := &Service{connectionManager: cm}
	if nc != nil {
		s.fanout = NewFanout(nc, cm)
		s.emitter = s.fanout
	} else {
		s.emitter = NewLocal(cm)
	}
	return s
}

// Emitter returns the event sink to hand to the game App.
func (s *Service) Emitter() Emitter {
	return s.emitter
}

// Attach connects the gateway to the session service. The App is built
// after the gateway because it publishes through Emitter.
func (s *Service) Attach(sessions Sessions, config Config) {
	verifier := NewVerifier(config.JWTSecret)
	dispatcher := NewDispatcher(sessions)
	s.connectionManager.OnMessage(dispatcher.Handle)
	s.connectionManager.OnClose(dispatcher.Disconnected)
	s.wsHandler = NewWebSocketHandler(s.connectionManager, sessions, verifier)
	s.stateHandler = NewStateHandler(sessions, verifier, config.Clock)
}

// Start runs delivery and, when clustered, the NATS subscription until ctx
// is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.wsHandler == nil {
		return errors.New("gateway started before Attach")
	}
	log.Info().Bool("clustered", s.fanout != nil).Msg("starting session gateway")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.connectionManager.Start(ctx)
	})
	if s.fanout != nil {
		g.Go(func() error {
			return s.fanout.Run(ctx)
		})
	}
	err := g.Wait()
	log.Info().Msg("session gateway stopped")
	return err
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// Stats returns connection counts.
func (s *Service) Stats() map[string]int {
	return s.connectionManager.Stats()
}
