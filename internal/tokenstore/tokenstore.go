// Package tokenstore holds the current session in memory and fans every
// change out to subscribers. It is the single source of truth for the
// session; nothing here touches storage or the network.
package tokenstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/pkg/models"
)

// Handler receives the new session after every Set. Handlers run
// synchronously inside Set, so they must not block and must not call Set.
type Handler func(models.Session)

type subscription struct {
	id uint64
	fn Handler
}

type Store struct {
	log *slog.Logger

	// setMu serializes Set so one notification round finishes before the
	// next session becomes current.
	setMu sync.Mutex

	mu      sync.RWMutex
	current models.Session
	subs    []subscription
	nextID  uint64
}

// New returns a store holding initial, which is usually the empty session
// or one restored from a session store.
func New(logger *slog.Logger, initial models.Session) *Store {
	if logger == nil {
		logger = logutil.Discard()
	}
	return &Store{
		log:     logger,
		current: initial.Clone(),
	}
}

// Get returns a snapshot of the current session.
func (s *Store) Get() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Set replaces the session and notifies subscribers in subscription order.
func (s *Store) Set(session models.Session) {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	session = session.Clone()

	s.mu.Lock()
	s.current = session
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.log.Debug("session replaced", logutil.SessionAttrs(session), "subscribers", len(subs))

	for _, sub := range subs {
		sub.fn(session.Clone())
	}
}

// Clear replaces the session with the empty session.
func (s *Store) Clear() {
	s.Set(models.EmptySession())
}

// IsValid reports whether a token is held and has not expired at now.
func (s *Store) IsValid(now time.Time) bool {
	sess := s.Get()
	return !sess.IsEmpty() && !sess.Expired(now)
}

// Subscribe registers h for every future Set. The returned function removes
// the subscription and is safe to call more than once.
func (s *Store) Subscribe(h Handler) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: h})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
