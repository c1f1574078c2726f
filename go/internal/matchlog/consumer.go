package matchlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizhall/go/internal/events"
)

// Store persists a finished match. Recording the same match twice must be
// harmless.
type Store interface {
	RecordMatch(ctx context.Context, m events.MatchCompletedPayload) error
}

type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		StreamName:    DefaultStreamName,
		ConsumerName:  "matchlog-recorder",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// Consumer feeds the match stream into a Store.
type Consumer struct {
	consumer jetstream.Consumer
	store    Store
	config   ConsumerConfig
}

// NewConsumer creates or binds the durable consumer.
func NewConsumer(ctx context.Context, js jetstream.JetStream, store Store, cfg ConsumerConfig) (*Consumer, error) {
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
		Name:          cfg.ConsumerName,
		Durable:       cfg.ConsumerName,
		Description:   "Match statistics recorder",
		FilterSubject: SubjectCompleted,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", cfg.ConsumerName, err)
	}
	return &Consumer{consumer: consumer, store: store, config: cfg}, nil
}

// Run processes messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("starting match consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			if err := msg.Nak(); err != nil {
				log.Debug().Err(err).Msg("failed to NAK message on shutdown")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("match consumer shutting down")
			return nil
		case msg := <-messageCh:
			c.handle(ctx, msg)
		}
	}
}

var errMalformed = errors.New("malformed match message")

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	err := c.process(ctx, msg)
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	case errors.Is(err, errMalformed):
		// redelivery cannot fix a bad payload
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping match message")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
	default:
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to record match")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg jetstream.Msg) error {
	var m events.MatchCompletedPayload
	if err := json.Unmarshal(msg.Data(), &m); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if m.SessionID == "" {
		return fmt.Errorf("%w: missing session id", errMalformed)
	}
	if err := c.store.RecordMatch(ctx, m); err != nil {
		return err
	}
	log.Info().
		Str("session_id", m.SessionID).
		Int("players", len(m.Scores)).
		Msg("match recorded")
	return nil
}
