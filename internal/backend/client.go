// Package backend talks to the hosted auth API (PocketBase's users
// collection). It knows the endpoint shapes and nothing about sessions.
package backend

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/pkg/models"
)

const (
	DefaultCollection = "users"
	DefaultTimeout    = 10 * time.Second

	requestIDHeader = "X-Request-Id"
)

// AuthResponse is returned by password auth and auth refresh.
type AuthResponse struct {
	Token  string          `json:"token"`
	Record models.Identity `json:"record"`
}

type Client struct {
	http       *resty.Client
	log        *slog.Logger
	baseURL    string
	collection string
	timeout    time.Duration
	hc         *http.Client
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHTTPClient swaps the underlying transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCollection targets an auth collection other than "users".
func WithCollection(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.collection = name
		}
	}
}

// New returns a client rooted at baseURL, e.g. https://my-app.pockethost.io.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		log:        logutil.Discard(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: DefaultCollection,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.hc != nil {
		c.http = resty.NewWithClient(c.hc)
	} else {
		c.http = resty.New()
	}
	c.http.
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json")

	return c
}

// BaseURL returns the endpoint root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthWithPassword exchanges credentials for a token and user record.
func (c *Client) AuthWithPassword(ctx context.Context, identity, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{
		"identity": identity,
		"password": password,
	}
	if err := c.post(ctx, c.path("auth-with-password"), "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser creates a user record. It does not authenticate.
func (c *Client) CreateUser(ctx context.Context, email, password, passwordConfirm string) (*models.Identity, error) {
	var out models.Identity
	body := map[string]string{
		"email":           email,
		"password":        password,
		"passwordConfirm": passwordConfirm,
	}
	if err := c.post(ctx, c.path("records"), "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthRefresh trades a still valid token for a fresh one.
func (c *Client) AuthRefresh(ctx context.Context, token string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.post(ctx, c.path("auth-refresh"), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	requestID := uuid.NewString()
	defer logutil.NewTimingLogger(c.log, time.Now(), "backend request", "method", http.MethodGet, "path", "/api/health", "request_id", requestID)()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, requestID).
		SetError(&ResponseError{}).
		Get("/api/health")
	return c.result(resp, err, requestID)
}

func (c *Client) path(action string) string {
	return "/api/collections/" + c.collection + "/" + action
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	requestID := uuid.NewString()
	defer logutil.NewTimingLogger(c.log, time.Now(), "backend request", "method", http.MethodPost, "path", path, "request_id", requestID)()

	req := c.http.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, requestID).
		SetResult(out).
		SetError(&ResponseError{})
	if token != "" {
		req.SetHeader("Authorization", token)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Post(path)
	return c.result(resp, err, requestID)
}

func (c *Client) result(resp *resty.Response, err error, requestID string) error {
	if err != nil {
		return logutil.DebugAndWrapErr(c.log, "backend unreachable", newTransportError(err, requestID), "request_id", requestID)
	}

	if resp.IsError() {
		rerr, ok := resp.Error().(*ResponseError)
		if !ok || rerr == nil {
			rerr = &ResponseError{}
		}
		rerr.Status = resp.StatusCode()
		rerr.RequestID = requestID
		if rerr.Message == "" {
			rerr.Message = strings.TrimSpace(resp.String())
		}
		c.log.Debug("backend rejected request", "request_id", requestID, "status", rerr.Status, "err", rerr)
		return rerr
	}

	return nil
}
