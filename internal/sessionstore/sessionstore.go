// Package sessionstore persists the session between process runs. The
// in-memory session lives in the token store; this package only saves and
// restores snapshots of it.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/pkg/models"
)

// Backend stores one opaque blob. expiresAt lets backends with native expiry
// drop the blob on their own.
type Backend interface {
	Get(ctx context.Context) ([]byte, error)
	Put(ctx context.Context, data []byte, expiresAt time.Time) error
	Delete(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by backends with nothing saved.
var ErrNotFound = errors.New("no saved session")

// errors

var ErrSessionExpired = &SessionExpiredError{}

type SessionExpiredError struct {
	ExpiredAt time.Time
}

func (e *SessionExpiredError) Error() string {
	if e.ExpiredAt.IsZero() {
		return "saved session has expired"
	}
	return fmt.Sprintf("saved session expired at %s", e.ExpiredAt.Format(time.RFC3339))
}

func (e *SessionExpiredError) Is(target error) bool {
	_, ok := target.(*SessionExpiredError)
	return ok
}

// record is the persisted form. ExpiresAt is not stored; it is decoded from
// the token again on load.
type record struct {
	Token    string           `json:"token"`
	Identity *models.Identity `json:"record"`
	SavedAt  time.Time        `json:"saved_at"`
}

// Store encodes sessions and hands them to a Backend.
type Store struct {
	log     *slog.Logger
	backend Backend
	clock   clockwork.Clock
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(b Backend, opts ...Option) *Store {
	s := &Store{
		log:     logutil.Discard(),
		backend: b,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes sess. Saving the empty session deletes whatever was saved.
func (s *Store) Save(ctx context.Context, sess models.Session) error {
	defer logutil.NewTimingLogger(s.log, time.Now(), "saved session")()

	if sess.IsEmpty() {
		return s.Clear(ctx)
	}

	data, err := json.Marshal(record{
		Token:    sess.Token,
		Identity: sess.Identity,
		SavedAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to encode session",
			models.NewTransformationError(err.Error()))
	}

	if err := s.backend.Put(ctx, data, sess.ExpiresAt); err != nil {
		return logutil.LogAndWrapErr(s.log, "failed to save session", err)
	}
	return nil
}

// Load reads the saved session. It returns ErrNotFound when nothing is
// saved, a *models.TransformationError for unreadable data and a
// *SessionExpiredError for a token already past its expiry.
func (s *Store) Load(ctx context.Context) (models.Session, error) {
	defer logutil.NewTimingLogger(s.log, time.Now(), "loaded session")()

	data, err := s.backend.Get(ctx)
	if err != nil {
		return models.EmptySession(), err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.EmptySession(), models.NewTransformationError(fmt.Sprintf("corrupt saved session: %v", err))
	}

	sess, err := models.NewSession(rec.Token, rec.Identity)
	if err != nil {
		return models.EmptySession(), err
	}

	if sess.Expired(s.clock.Now()) {
		return models.EmptySession(), &SessionExpiredError{ExpiredAt: sess.ExpiresAt}
	}
	return sess, nil
}

// Restore is Load for startup: anything unusable comes back as the empty
// session and is cleared from the backend so it is not read again.
func (s *Store) Restore(ctx context.Context) models.Session {
	sess, err := s.Load(ctx)
	switch {
	case err == nil:
		s.log.Info("restored session", logutil.SessionAttrs(sess))
		return sess
	case errors.Is(err, ErrNotFound):
		s.log.Debug("no saved session")
		return models.EmptySession()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Warn("session restore interrupted", "err", err)
		return models.EmptySession()
	}

	s.log.Warn("discarding saved session", "err", err)
	if cerr := s.Clear(ctx); cerr != nil {
		s.log.Warn("failed to clear unusable session", "err", cerr)
	}
	return models.EmptySession()
}

// Clear removes the saved session. Clearing when nothing is saved is not an
// error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		return logutil.LogAndWrapErr(s.log, "failed to clear session", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
