package models

import (
	"encoding/json"
	"time"
)

// EventKind classifies entries in the collaboration event log.
type EventKind string

const (
	EventKindJoin         EventKind = "join"
	EventKindLeave        EventKind = "leave"
	EventKindContribution EventKind = "contribution"
	EventKindMessage      EventKind = "message"
	EventKindStroke       EventKind = "stroke"
)

// ActivityEvent is one durable entry in the append-only collaboration log.
// Sessions are replayed from this log; engagement counters for scoring are
// derived from it rather than from client-side state.
type ActivityEvent struct {
	ID         string          `db:"id" json:"id"`
	ActivityID string          `db:"activity_id" json:"activity_id"`
	SessionID  string          `db:"session_id" json:"session_id"`
	StudentID  string          `db:"student_id" json:"student_id"`
	Kind       EventKind       `db:"kind" json:"kind"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// SessionCounters summarises a collaboration session for scoring.
type SessionCounters struct {
	Participants  int `db:"participants" json:"participants"`
	Contributions int `db:"contributions" json:"contributions"`
}
