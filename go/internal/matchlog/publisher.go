// Package matchlog carries finished-match results from game servers to the
// statistics database over a JetStream stream.
package matchlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/events"
)

const (
	DefaultStreamName = "QUIZHALL_MATCHES"
	// SubjectCompleted carries one message per finished match.
	SubjectCompleted = "quizhall.matches.completed"
)

type StreamConfig struct {
	StreamName      string
	MaxAge          time.Duration
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		StreamName:      DefaultStreamName,
		MaxAge:          30 * 24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// EnsureStream creates the match stream, or updates it when its limits
// changed.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Finished quiz matches",
		Subjects:    []string{"quizhall.matches.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get stream %s: %w", cfg.StreamName, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	if info.Config.MaxAge != sc.MaxAge || info.Config.Replicas != sc.Replicas || info.Config.Duplicates != sc.Duplicates {
		if _, err := js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", cfg.StreamName, err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

// Publisher sends completion signals. The session id is the message id, so
// a match republished within the duplicate window is stored once.
type Publisher struct {
	js     jetstream.JetStream
	stream string
}

func NewPublisher(js jetstream.JetStream, stream string) *Publisher {
	return &Publisher{js: js, stream: stream}
}

func (p *Publisher) PublishMatchCompleted(ctx context.Context, m events.MatchCompletedPayload) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal match %s: %w", m.SessionID, err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: SubjectCompleted,
		Data:    data,
		Header: nats.Header{
			"Session-ID": []string{m.SessionID},
		},
	},
		jetstream.WithMsgID(m.SessionID),
		jetstream.WithExpectStream(p.stream),
	)
	if err != nil {
		return fmt.Errorf("failed to publish match %s: %w", m.SessionID, err)
	}

	log.Info().
		Str("session_id", m.SessionID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published match result")
	return nil
}
