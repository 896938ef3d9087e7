package events

import (
	"time"
)

// Event payload types shared between the relay engine and event consumers.

// SessionCreatedPayload is the payload for a SessionCreated event.
type SessionCreatedPayload struct {
	Label            string    `json:"label"`
	Definition       string    `json:"definition"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
	StartedAt        time.Time `json:"started_at"`
}

// PlayerJoinedPayload is the payload for a PlayerJoined event.
type PlayerJoinedPayload struct {
	Player   string    `json:"player"`
	Position int       `json:"position"`
	JoinedAt time.Time `json:"joined_at"`
}

// HandOffPayload is the payload for a HandOff event.
type HandOffPayload struct {
	FromPlayer string    `json:"from_player"`
	ToPlayer   string    `json:"to_player"`
	FromIndex  int       `json:"from_index"`
	ToIndex    int       `json:"to_index"`
	HandedAt   time.Time `json:"handed_at"`
}

// SessionCompletedPayload is the payload for a SessionCompleted event.
type SessionCompletedPayload struct {
	CompletedAt time.Time `json:"completed_at"`
}
