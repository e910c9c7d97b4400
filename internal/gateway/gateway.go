// Package gateway is the only writer of the session. It runs login, register,
// logout and refresh against the backend and publishes the outcome to the
// token store.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/scottscharl/scottystack/internal/backend"
	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/internal/tokenstore"
	"github.com/scottscharl/scottystack/pkg/models"
	"github.com/scottscharl/scottystack/pkg/translate"
	"golang.org/x/sync/singleflight"
)

// Backend is the slice of the auth API the gateway needs.
type Backend interface {
	AuthWithPassword(ctx context.Context, identity, password string) (*backend.AuthResponse, error)
	CreateUser(ctx context.Context, email, password, passwordConfirm string) (*models.Identity, error)
	AuthRefresh(ctx context.Context, token string) (*backend.AuthResponse, error)
}

type Gateway struct {
	log     *slog.Logger
	backend Backend
	store   *tokenstore.Store
	clock   clockwork.Clock

	// mu guards generation and every session write made by the gateway.
	// generation moves on each write so a refresh that started against an
	// older session can tell its result is stale.
	mu            sync.Mutex
	generation    uint64
	refreshCtx    context.Context
	cancelRefresh context.CancelFunc
	flights       singleflight.Group

	hookMu      sync.Mutex
	logoutHooks []func()
}

type Option func(*Gateway)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(g *Gateway) {
		if c != nil {
			g.clock = c
		}
	}
}

func New(store *tokenstore.Store, b Backend, opts ...Option) *Gateway {
	g := &Gateway{
		log:     logutil.Discard(),
		backend: b,
		store:   store,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.refreshCtx, g.cancelRefresh = context.WithCancel(context.Background())
	return g
}

// OnLogout registers fn to run at the start of every Logout, before the
// session is cleared. The scheduler uses it to stop its timer.
func (g *Gateway) OnLogout(fn func()) {
	g.hookMu.Lock()
	defer g.hookMu.Unlock()
	g.logoutHooks = append(g.logoutHooks, fn)
}

// Login authenticates and replaces the session. Inputs are passed through
// unchecked; the backend decides what is valid.
func (g *Gateway) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	resp, err := g.backend.AuthWithPassword(ctx, email, password)
	if err != nil {
		return nil, g.fail("login failed", err, "email", email)
	}

	sess, err := models.NewSession(resp.Token, &resp.Record)
	if err != nil {
		return nil, g.fail("login returned an unusable token", err, "email", email)
	}

	g.mu.Lock()
	g.replaceLocked(sess)
	g.mu.Unlock()

	g.log.Info("logged in", "user_id", sess.Identity.ID, "email", sess.Identity.Email)
	id := *sess.Identity
	return &id, nil
}

// Register creates the account and then logs in with the same credentials,
// so a successful registration always leaves an authenticated session.
func (g *Gateway) Register(ctx context.Context, email, password string) (*models.Identity, error) {
	if _, err := g.backend.CreateUser(ctx, email, password, password); err != nil {
		return nil, g.fail("registration failed", err, "email", email)
	}
	g.log.Info("account created", "email", email)

	return g.Login(ctx, email, password)
}

// Logout clears the session without contacting the backend. Logout hooks
// run first, then any in-flight refresh is cancelled and its result will be
// dropped. Calling it repeatedly is harmless.
func (g *Gateway) Logout() {
	g.hookMu.Lock()
	hooks := make([]func(), len(g.logoutHooks))
	copy(hooks, g.logoutHooks)
	g.hookMu.Unlock()

	// hooks may wait on goroutines that call Refresh, so they run unlocked
	for _, fn := range hooks {
		fn()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaceLocked(models.EmptySession())
	g.log.Info("logged out")
}

// Restore installs a session loaded from storage, as if a login had just
// produced it.
func (g *Gateway) Restore(s models.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaceLocked(s)
	if !s.IsEmpty() {
		g.log.Info("session restored", "user_id", s.Identity.ID)
	}
}

// Refresh renews the current token. Overlapping calls share one backend
// request. A rejected token clears the session. Network failures, rate
// limits and server errors keep it unless it has already expired.
func (g *Gateway) Refresh(ctx context.Context) error {
	g.mu.Lock()
	sess := g.store.Get()
	gen := g.generation
	flightCtx := g.refreshCtx
	g.mu.Unlock()

	if sess.IsEmpty() {
		return translate.ForKind(models.KindUnauthorized, models.ErrNoSession)
	}

	ch := g.flights.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, g.refresh(flightCtx, gen, sess.Token)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		// the shared request carries on for any other waiters
		return translate.ForKind(models.KindTransport, ctx.Err())
	}
}

func (g *Gateway) refresh(ctx context.Context, gen uint64, token string) error {
	// gen may already be stale when a late caller opens a new flight for it
	g.mu.Lock()
	if g.generation != gen {
		err := g.staleLocked(gen)
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	g.log.Debug("refreshing session", "generation", gen, "token", logutil.RedactToken(token))
	resp, err := g.backend.AuthRefresh(ctx, token)

	var sess models.Session
	if err == nil {
		sess, err = models.NewSession(resp.Token, &resp.Record)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.generation != gen {
		return g.staleLocked(gen)
	}

	if err != nil {
		aerr := translate.Error(err)
		if backend.IsTemporary(err) && !g.store.Get().Expired(g.clock.Now()) {
			g.log.Warn("refresh failed, keeping session until the next attempt", "err", err)
			return aerr
		}
		g.log.Info("refresh rejected, clearing session", "kind", aerr.Kind, "err", err)
		g.replaceLocked(models.EmptySession())
		return aerr
	}

	g.replaceLocked(sess)
	g.log.Debug("session refreshed", logutil.SessionAttrs(sess))
	return nil
}

// staleLocked is the outcome of a refresh whose generation has moved on.
// g.mu must be held.
func (g *Gateway) staleLocked(gen uint64) error {
	g.log.Debug("discarding stale refresh", "started", gen, "current", g.generation)
	if g.store.Get().IsEmpty() {
		return translate.ForKind(models.KindUnauthorized, errSuperseded)
	}
	return nil
}

// replaceLocked publishes s and fences off any refresh started before it.
// g.mu must be held.
func (g *Gateway) replaceLocked(s models.Session) {
	g.generation++
	g.cancelRefresh()
	g.refreshCtx, g.cancelRefresh = context.WithCancel(context.Background())
	g.store.Set(s)
}

func (g *Gateway) fail(msg string, err error, fields ...any) error {
	aerr := translate.Error(err)
	fields = append(fields, "kind", aerr.Kind)
	return logutil.DebugAndWrapErr(g.log, msg, aerr, fields...)
}

var errSuperseded = errors.New("session ended while refresh was in flight")
