// Package events carries the relay engine's domain events. Publishing is
// best-effort and fire-and-forget: coordination correctness never depends on
// an event being delivered.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event types emitted by the engine.
const (
	TypeSessionCreated   = "SessionCreated"
	TypePlayerJoined     = "PlayerJoined"
	TypeHandOff          = "HandOff"
	TypeSessionCompleted = "SessionCompleted"
)

// Event is one domain event tied to a session.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Session   string          `json:"session"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id and a marshaled payload.
func New(eventType, session string, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		EventType: eventType,
		Session:   session,
		CreatedAt: now.UTC(),
		Payload:   data,
	}, nil
}

// Publisher delivers events to whatever the host wires up.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher logs events without delivering them anywhere. Used by hosts
// that run without a broker, and by tests.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("session", event.Session).
		Msg("publishing event")
	return nil
}
