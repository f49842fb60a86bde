package chat

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/readyhouston/hdr/internal/proxy"
)

// Turn is one conversation message.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is an append-only conversation log. It is not capped; callers
// take a bounded window with Last and persistence trims its own copy.
type History struct {
	clock clockwork.Clock

	mu    sync.Mutex
	turns []Turn
}

// NewHistory returns an empty history. A nil clock uses the real clock.
func NewHistory(clock clockwork.Clock) *History {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &History{clock: clock}
}

// NewHistoryFrom returns a history seeded with previously persisted turns.
func NewHistoryFrom(clock clockwork.Clock, turns []Turn) *History {
	h := NewHistory(clock)
	h.turns = append(h.turns, turns...)
	return h
}

// Append records a turn stamped with the current time and returns it.
func (h *History) Append(role, content string) Turn {
	t := Turn{Role: role, Content: content, Timestamp: h.clock.Now()}
	h.mu.Lock()
	h.turns = append(h.turns, t)
	h.mu.Unlock()
	return t
}

// Last returns at most n of the most recent turns as LLM messages, oldest
// first.
func (h *History) Last(n int) []proxy.Message {
	if h == nil || n <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := h.turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]proxy.Message, len(turns))
	for i, t := range turns {
		out[i] = proxy.Message{Role: t.Role, Content: t.Content}
	}
	return out
}

// Turns returns a copy of every turn.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
