package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TranscriptLimit is the number of turns kept per session transcript.
const TranscriptLimit = 50

// Interaction records one assistant exchange and which tier answered it.
type Interaction struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	SessionID string    `json:"sessionId,omitempty"`
	UserQuery string    `json:"userQuery"`
	Tier      string    `json:"tier"`
	Searched  bool      `json:"searched"`
	Response  string    `json:"response"`
}

// TranscriptTurn is one persisted conversation turn.
type TranscriptTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}
