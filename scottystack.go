// Package scottystack is the client side session manager for a PocketBase
// backed app. A Client holds the current session, tells subscribers about
// every change and refreshes the token before it expires.
package scottystack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"
	"github.com/scottscharl/scottystack/internal/backend"
	"github.com/scottscharl/scottystack/internal/gateway"
	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/internal/scheduler"
	"github.com/scottscharl/scottystack/internal/sessionstore"
	"github.com/scottscharl/scottystack/internal/tokenstore"
	"github.com/scottscharl/scottystack/pkg/models"
)

type Client struct {
	logger *slog.Logger
	clock  clockwork.Clock

	// Hold information to build the components after configuration
	baseURL       string
	timeout       time.Duration
	collection    string
	httpClient    *http.Client
	pollInterval  time.Duration
	refreshWindow time.Duration
	backend       gateway.Backend
	persist       *sessionstore.Store

	tokens    *tokenstore.Store
	gateway   *gateway.Gateway
	scheduler *scheduler.Scheduler

	closeOnce sync.Once
	closeErr  error
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLogr routes logging through a logr.Logger. A discard logger is
// ignored so it cannot override WithLogger.
func WithLogr(l logr.Logger) Option {
	return func(c *Client) {
		if l.GetSink() != nil {
			c.logger = slog.New(logr.ToSlogHandler(l))
		}
	}
}

// WithBaseURL points the client at a backend, e.g. https://app.pockethost.io.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithCollection(name string) Option {
	return func(c *Client) {
		c.collection = name
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBackend replaces the HTTP backend entirely. Base URL, timeout and
// collection options are then ignored.
func WithBackend(b gateway.Backend) Option {
	return func(c *Client) {
		c.backend = b
	}
}

// WithSessionStore enables Restore and Persist.
func WithSessionStore(s *sessionstore.Store) Option {
	return func(c *Client) {
		c.persist = s
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

func WithRefreshWindow(d time.Duration) Option {
	return func(c *Client) {
		c.refreshWindow = d
	}
}

// New wires the session components and starts the refresh scheduler. The
// session starts empty; call Restore to load a saved one.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		logger:        logutil.Discard(),
		clock:         clockwork.NewRealClock(),
		timeout:       backend.DefaultTimeout,
		collection:    backend.DefaultCollection,
		pollInterval:  scheduler.DefaultPollInterval,
		refreshWindow: scheduler.DefaultRefreshWindow,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.backend == nil {
		if c.baseURL == "" {
			return nil, fmt.Errorf("scottystack: a base URL or backend is required")
		}
		bopts := []backend.Option{
			backend.WithLogger(logutil.WithFields(c.logger, "component", "backend")),
			backend.WithTimeout(c.timeout),
			backend.WithCollection(c.collection),
		}
		if c.httpClient != nil {
			bopts = append(bopts, backend.WithHTTPClient(c.httpClient))
		}
		c.backend = backend.New(c.baseURL, bopts...)
	}

	c.tokens = tokenstore.New(logutil.WithFields(c.logger, "component", "tokenstore"), models.EmptySession())
	c.gateway = gateway.New(c.tokens, c.backend,
		gateway.WithLogger(logutil.WithFields(c.logger, "component", "gateway")),
		gateway.WithClock(c.clock),
	)

	sched, err := scheduler.New(c.tokens, c.gateway,
		scheduler.WithLogger(logutil.WithFields(c.logger, "component", "scheduler")),
		scheduler.WithClock(c.clock),
		scheduler.WithPollInterval(c.pollInterval),
		scheduler.WithRefreshWindow(c.refreshWindow),
	)
	if err != nil {
		return nil, fmt.Errorf("scottystack: %w", err)
	}
	c.scheduler = sched
	c.gateway.OnLogout(c.scheduler.Disarm)
	c.scheduler.Start()

	c.logger.Debug("session client ready", "base_url", c.baseURL,
		"poll_interval", c.pollInterval, "refresh_window", c.refreshWindow)
	return c, nil
}

// Session returns a snapshot of the current session.
func (c *Client) Session() models.Session {
	return c.tokens.Get()
}

// IsAuthenticated reports whether a session is present and unexpired.
func (c *Client) IsAuthenticated() bool {
	return c.tokens.IsValid(c.clock.Now())
}

// Subscribe calls h with the new session after every change. h runs
// synchronously and must not block or call back into the Client.
func (c *Client) Subscribe(h func(models.Session)) (unsubscribe func()) {
	return c.tokens.Subscribe(h)
}

// SchedulerState reports whether a refresh timer is armed.
func (c *Client) SchedulerState() scheduler.State {
	return c.scheduler.State()
}

func (c *Client) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	return c.gateway.Login(ctx, email, password)
}

func (c *Client) Register(ctx context.Context, email, password string) (*models.Identity, error) {
	return c.gateway.Register(ctx, email, password)
}

func (c *Client) Logout() {
	c.gateway.Logout()
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.gateway.Refresh(ctx)
}

// Restore loads the saved session, if any, and makes it current. Unusable
// saved data yields the empty session.
func (c *Client) Restore(ctx context.Context) models.Session {
	if c.persist == nil {
		return c.Session()
	}
	sess := c.persist.Restore(ctx)
	if !sess.IsEmpty() {
		c.gateway.Restore(sess)
	}
	return sess
}

// Persist saves the current session, or clears the saved one when logged
// out.
func (c *Client) Persist(ctx context.Context) error {
	if c.persist == nil {
		return nil
	}
	return c.persist.Save(ctx, c.Session())
}

// Close stops the scheduler, persists the final session and releases the
// session store. Calling Close again returns the first result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.scheduler.Stop()
		if c.persist == nil {
			return
		}
		if err := c.Persist(ctx); err != nil {
			c.closeErr = err
		}
		if err := c.persist.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}
