// Package scheduler refreshes the session before its token expires. It is
// owned by the session service, not by any UI element, so its lifetime
// follows the session.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/internal/tokenstore"
	"github.com/scottscharl/scottystack/pkg/models"
)

const (
	DefaultPollInterval  = 2 * time.Minute
	DefaultRefreshWindow = 5 * time.Minute
)

var ErrInvalidTiming = errors.New("poll interval must be positive and shorter than the refresh window")

// State of the scheduler.
type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	default:
		return "unknown"
	}
}

// Refresher renews the session. The gateway implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Source is where the scheduler learns about session changes.
type Source interface {
	Get() models.Session
	Subscribe(h tokenstore.Handler) (unsubscribe func())
}

type Scheduler struct {
	log       *slog.Logger
	source    Source
	refresher Refresher
	clock     clockwork.Clock
	interval  time.Duration
	window    time.Duration

	mu          sync.Mutex
	state       State
	cancel      context.CancelFunc
	running     []chan struct{} // done channels of poll loops not yet known to have exited
	unsubscribe func()
	lastCheck   time.Time // last refresh attempt, limits checks made on arm
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

func WithRefreshWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		s.window = d
	}
}

// New validates the timing and returns an idle scheduler. Call Start to
// begin following the source.
func New(source Source, refresher Refresher, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		log:       logutil.Discard(),
		source:    source,
		refresher: refresher,
		clock:     clockwork.NewRealClock(),
		interval:  DefaultPollInterval,
		window:    DefaultRefreshWindow,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.interval <= 0 || s.interval >= s.window {
		return nil, ErrInvalidTiming
	}
	return s, nil
}

// ShouldRefresh reports whether a token with remaining lifetime is inside
// the refresh window.
func ShouldRefresh(remaining, window time.Duration) bool {
	return remaining < window
}

// Start subscribes to session changes and arms immediately if a session is
// already present. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	s.unsubscribe = s.source.Subscribe(s.onSession)
	s.mu.Unlock()

	s.onSession(s.source.Get())
}

// Stop unsubscribes and disarms. When it returns no poll loop is running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.Disarm()
}

// Disarm stops the timer and waits for every poll loop to exit. The
// subscription stays, so the next session change arms again.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	running := s.stopLocked()
	s.mu.Unlock()

	for _, done := range running {
		<-done
	}
}

// State returns Idle or Armed.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// onSession runs inside TokenStore.Set, so it only cancels and spawns.
func (s *Scheduler) onSession(sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	if sess.IsEmpty() {
		s.log.Debug("scheduler idle")
		return
	}

	// a token already inside the window is checked at once, at most once
	// per poll interval
	now := s.clock.Now()
	immediate := ShouldRefresh(sess.Remaining(now), s.window) &&
		(s.lastCheck.IsZero() || now.Sub(s.lastCheck) >= s.interval)
	if immediate {
		s.lastCheck = now
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.running = append(s.running, done)
	s.state = Armed

	s.log.Debug("scheduler armed", "expires_at", sess.ExpiresAt, "interval", s.interval,
		"window", s.window, "check_now", immediate)
	go s.run(ctx, sess.ExpiresAt, immediate, done)
}

// stopLocked cancels the current loop and returns the done channels of all
// loops that may still be running. s.mu must be held.
func (s *Scheduler) stopLocked() []chan struct{} {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = Idle

	var alive []chan struct{}
	for _, done := range s.running {
		select {
		case <-done:
		default:
			alive = append(alive, done)
		}
	}
	s.running = alive

	out := make([]chan struct{}, len(alive))
	copy(out, alive)
	return out
}

func (s *Scheduler) run(ctx context.Context, expiresAt time.Time, immediate bool, done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	if immediate && ctx.Err() == nil {
		s.poll(ctx, expiresAt)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.poll(ctx, expiresAt)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context, expiresAt time.Time) {
	remaining := expiresAt.Sub(s.clock.Now())
	if !ShouldRefresh(remaining, s.window) {
		s.log.Debug("token still fresh", "remaining", remaining)
		return
	}

	s.log.Debug("token inside refresh window", "remaining", remaining)
	s.mu.Lock()
	s.lastCheck = s.clock.Now()
	s.mu.Unlock()

	err := s.refresher.Refresh(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// superseded by a newer session or disarmed mid-request
		s.log.Debug("scheduled refresh abandoned", "err", err)
	default:
		// a rejected refresh has already cleared the session, which idles us
		s.log.Warn("scheduled refresh failed", "err", err, "remaining", remaining)
	}
}
