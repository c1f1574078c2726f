package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/events"
)

const subjectPrefix = "quizhall.sessions."

// Subject is the NATS subject carrying a session's events.
func Subject(sessionID string) string {
	return subjectPrefix + sessionID + ".events"
}

// route hands a received event to local connections. Removal and deletion
// events also close the affected sockets once the frame is queued.
func route(cm *ConnectionManager, w wireEvent) error {
	frame, err := w.frame()
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	cm.Deliver(w.SessionID, w.recipient(), frame)

	switch w.Kind {
	case events.KindParticipantLeft:
		var left events.ParticipantLeftPayload
		if err := json.Unmarshal(w.Data, &left); err == nil && left.ParticipantID != "" {
			cm.DropAfterFlush(w.SessionID, left.ParticipantID)
		}
	case events.KindSessionDeleted:
		cm.DropAfterFlush(w.SessionID, "")
	}
	return nil
}

// Local delivers events straight to this process's connections. It serves
// single-process deployments running on the in-memory store.
type Local struct {
	cm *ConnectionManager
}

func NewLocal(cm *ConnectionManager) *Local {
	return &Local{cm: cm}
}

func (l *Local) Emit(_ context.Context, d events.Directive) error {
	w, err := newWireEvent(d, time.Now())
	if err != nil {
		return err
	}
	return route(l.cm, w)
}

// Fanout publishes events on core NATS so that every gateway process can
// deliver them to the sockets it holds. Delivery is at most once.
type Fanout struct {
	nc *nats.Conn
	cm *ConnectionManager
}

func NewFanout(nc *nats.Conn, cm *ConnectionManager) *Fanout {
	return &Fanout{nc: nc, cm: cm}
}

func (f *Fanout) Emit(_ context.Context, d events.Directive) error {
	w, err := newWireEvent(d, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := f.nc.Publish(Subject(d.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish %s for session %s: %w", d.Kind, d.SessionID, err)
	}
	return nil
}

// Run subscribes to every session subject until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) error {
	msgCh := make(chan *nats.Msg, 1024)
	sub, err := f.nc.ChanSubscribe(subjectPrefix+"*.events", msgCh)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to unsubscribe from session events")
		}
	}()

	log.Info().Str("subject", sub.Subject).Msg("event fan-out started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event fan-out stopped")
			return nil
		case msg := <-msgCh:
			f.handle(msg)
		}
	}
}

func (f *Fanout) handle(msg *nats.Msg) {
	var w wireEvent
	if err := json.Unmarshal(msg.Data, &w); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode session event")
		return
	}
	if w.SessionID == "" {
		w.SessionID = strings.TrimSuffix(strings.TrimPrefix(msg.Subject, subjectPrefix), ".events")
	}
	if err := route(f.cm, w); err != nil {
		log.Error().Err(err).Str("session_id", w.SessionID).Str("kind", string(w.Kind)).Msg("failed to route session event")
	}
}
