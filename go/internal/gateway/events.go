package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/quizhall/go/internal/events"
)

// Frame is what a websocket client receives.
type Frame struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      events.Kind     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// wireEvent is a directive as it travels between gateway processes. The
// payload is encoded once by the publisher.
type wireEvent struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Kind        events.Kind     `json:"kind"`
	Target      events.Target   `json:"target"`
	RecipientID string          `json:"recipient_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func newWireEvent(d events.Directive, now time.Time) (wireEvent, error) {
	w := wireEvent{
		ID:          uuid.New().String(),
		SessionID:   d.SessionID,
		Kind:        d.Kind,
		Target:      d.Target,
		RecipientID: d.RecipientID,
		Timestamp:   now,
	}
	if d.Payload != nil {
		data, err := json.Marshal(d.Payload)
		if err != nil {
			return w, fmt.Errorf("failed to encode %s payload: %w", d.Kind, err)
		}
		w.Data = data
	}
	return w, nil
}

// recipient is empty for broadcasts.
func (w wireEvent) recipient() string {
	if w.Target == events.TargetOne {
		return w.RecipientID
	}
	return ""
}

func (w wireEvent) frame() ([]byte, error) {
	return json.Marshal(Frame{
		ID:        w.ID,
		SessionID: w.SessionID,
		Type:      w.Kind,
		Timestamp: w.Timestamp,
		Data:      w.Data,
	})
}

// Command is a frame sent by a client.
type Command struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ErrorData is the body of an ERROR frame.
type ErrorData struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
