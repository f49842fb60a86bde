package chat

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/readyhouston/hdr/internal/lru"
)

// ErrBusy is returned by Acquire while the session still has a reply pending.
var ErrBusy = errors.New("session has a reply in progress")

// Session is one conversation held by the server.
type Session struct {
	ID      string
	History *History

	busy atomic.Bool
}

// Sessions keeps the most recently used conversations in memory. Idle
// sessions expire after the configured TTL.
type Sessions struct {
	clock clockwork.Clock
	cache *lru.Cache[string, *Session]
	// load seeds a newly created session, typically from persisted
	// transcripts. It may be nil.
	load func(id string) []Turn
}

// NewSessions creates a session table holding at most max sessions.
func NewSessions(max int, ttl time.Duration, clock clockwork.Clock, load func(id string) []Turn) *Sessions {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sessions{
		clock: clock,
		cache: lru.New[string, *Session](max, ttl, clock).WithKeep(func(s *Session) bool {
			return s.busy.Load()
		}),
		load: load,
	}
}

// Acquire returns the session for id, creating it (with a fresh ID when id
// is empty) if needed, and marks it busy. The returned release func must be
// called when the reply is done. A session can be held by one caller at a
// time; concurrent callers get ErrBusy. Held sessions are never evicted.
func (s *Sessions) Acquire(id string) (*Session, func(), error) {
	if id == "" {
		id = uuid.NewString()
	}
	for {
		sess := s.cache.GetOrCreate(id, func() *Session {
			var turns []Turn
			if s.load != nil {
				turns = s.load(id)
			}
			return &Session{ID: id, History: NewHistoryFrom(s.clock, turns)}
		})
		if !sess.busy.CompareAndSwap(false, true) {
			return nil, nil, ErrBusy
		}
		// The entry may have been evicted between lookup and lock.
		if cur, ok := s.cache.Get(id); ok && cur == sess {
			return sess, func() { sess.busy.Store(false) }, nil
		}
		sess.busy.Store(false)
	}
}

// Get returns a live session without creating or locking it.
func (s *Sessions) Get(id string) (*Session, bool) {
	return s.cache.Get(id)
}

// Remove drops a session from memory.
func (s *Sessions) Remove(id string) {
	s.cache.Remove(id)
}

func (s *Sessions) Len() int {
	return s.cache.Len()
}
