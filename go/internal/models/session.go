package models

import (
	"time"
)

// SessionState defines the lifecycle state of a relay session.
type SessionState string

const (
	// SessionStateNone is the absence of a session for a label. It is never
	// stored; it only appears when classifying documents.
	SessionStateNone     SessionState = "NONE"
	SessionStateActive   SessionState = "ACTIVE"
	SessionStateComplete SessionState = "COMPLETE"
)

// Session represents one running relay game instance. The document store is
// authoritative for all of these fields; this struct is a decoded view.
type Session struct {
	Title              string            `json:"title"`
	DefinitionRef      string            `json:"definition_ref"`
	State              SessionState      `json:"state"`
	Players            []string          `json:"players"`
	StartTime          time.Time         `json:"start_time"`
	TimeLimitMinutes   int               `json:"time_limit_minutes"`
	ParameterValues    map[string]string `json:"parameter_values,omitempty"`
	ProblemText        string            `json:"problem_text"`
	Notes              string            `json:"notes"`
	Answer             string            `json:"answer"`
	CurrentPlayerIndex int               `json:"current_player_index"`
	LaunchRef          string            `json:"launch_ref,omitempty"`
}

// IsActive reports whether the session is currently being played.
func (s *Session) IsActive() bool {
	return s.State == SessionStateActive
}
