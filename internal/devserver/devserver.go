// Package devserver is a local stand-in for the backend auth API. It serves
// the handful of endpoints the client uses, with users kept in memory, so
// the CLI and the end-to-end tests can run without a real backend.
package devserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/pkg/models"
	"github.com/scottscharl/scottystack/pkg/models/passwd"
)

const DefaultCollection = "users"

type user struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	Created      time.Time
	Updated      time.Time
}

func (u *user) record() models.Identity {
	return models.Identity{
		ID:       u.ID,
		Email:    u.Email,
		Verified: u.Verified,
		Created:  models.NewDateTime(u.Created),
		Updated:  models.NewDateTime(u.Updated),
	}
}

type Server struct {
	log        *slog.Logger
	clock      clockwork.Clock
	hasher     passwd.Hasher
	secret     []byte
	tokenTTL   time.Duration
	collection string

	mu    sync.RWMutex
	users map[string]*user // email -> user
	byID  map[string]*user

	router chi.Router
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSecret sets the token signing key. Without it a random key is
// generated, so tokens do not survive a restart.
func WithSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

func WithHasher(h passwd.Hasher) Option {
	return func(s *Server) {
		s.hasher = h
	}
}

func WithCollection(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.collection = name
		}
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		log:        logutil.Discard(),
		clock:      clockwork.NewRealClock(),
		hasher:     passwd.Default,
		tokenTTL:   time.Hour,
		collection: DefaultCollection,
		users:      make(map[string]*user),
		byID:       make(map[string]*user),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.secret == nil {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			panic("devserver: could not generate signing key: " + err.Error())
		}
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/api/health", s.handleHealth())
	r.Route("/api/collections/{collection}", func(rr chi.Router) {
		rr.Use(s.requireCollection)
		rr.Post("/auth-with-password", s.handleAuthWithPassword())
		rr.Post("/records", s.handleCreateRecord())
		rr.Post("/auth-refresh", s.handleAuthRefresh())
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ReturnError(w, s.log, NotFound)
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dev server listening", "addr", addr, "collection", s.collection)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down dev server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Users returns the number of registered accounts.
func (s *Server) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// SetVerified marks the account for email as verified.
func (s *Server) SetVerified(email string, verified bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if ok {
		u.Verified = verified
		u.Updated = s.clock.Now().UTC()
	}
	return ok
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("Access", "method", r.Method, "path", r.URL.Path, "remote_ip", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireCollection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "collection") != s.collection {
			ReturnError(w, s.log, NotFoundCollection)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RespondJSONAndLog(w, s.log, http.StatusOK, map[string]any{
			"code":    http.StatusOK,
			"message": "API is healthy.",
			"data":    map[string]any{},
		})
	}
}

type authResponse struct {
	Token  string          `json:"token"`
	Record models.Identity `json:"record"`
}

func (s *Server) respondAuth(w http.ResponseWriter, u *user) {
	token, err := s.issueToken(u)
	if err != nil {
		s.log.Error("failed to sign token", "err", err, "user_id", u.ID)
		ReturnError(w, s.log, InternalServerError)
		return
	}
	RespondJSONAndLog(w, s.log, http.StatusOK, authResponse{Token: token, Record: u.record()})
}

func (s *Server) handleAuthWithPassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Identity string `json:"identity"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			ReturnError(w, s.log, BadRequestInvalidJSON)
			return
		}

		s.mu.RLock()
		u, ok := s.users[body.Identity]
		s.mu.RUnlock()

		if !ok || !s.hasher.Check(body.Password, u.PasswordHash) {
			s.log.Debug("authentication failed", "identity", body.Identity)
			ReturnError(w, s.log, BadRequestAuth)
			return
		}

		s.log.Info("user authenticated", "user_id", u.ID)
		s.respondAuth(w, u)
	}
}

func (s *Server) handleCreateRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email           string `json:"email"`
			Password        string `json:"password"`
			PasswordConfirm string `json:"passwordConfirm"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			ReturnError(w, s.log, BadRequestInvalidJSON)
			return
		}

		fields := s.validateRecord(body.Email, body.Password, body.PasswordConfirm)
		if len(fields) > 0 {
			ReturnError(w, s.log, func() (int, ErrorResponse) { return BadRequestCreate(fields) })
			return
		}

		hash, err := s.hasher.Hash(body.Password)
		if err != nil {
			s.log.Error("failed to hash password", "err", err)
			ReturnError(w, s.log, InternalServerError)
			return
		}

		now := s.clock.Now().UTC()
		u := &user{
			ID:           uuid.NewString(),
			Email:        body.Email,
			PasswordHash: hash,
			Created:      now,
			Updated:      now,
		}

		s.mu.Lock()
		if _, taken := s.users[u.Email]; taken {
			s.mu.Unlock()
			ReturnError(w, s.log, func() (int, ErrorResponse) {
				return BadRequestCreate(map[string]FieldError{
					"email": {Code: CodeNotUnique, Message: "Value must be unique."},
				})
			})
			return
		}
		s.users[u.Email] = u
		s.byID[u.ID] = u
		s.mu.Unlock()

		s.log.Info("user created", "user_id", u.ID, "email", u.Email)
		RespondJSONAndLog(w, s.log, http.StatusOK, u.record())
	}
}

// validateRecord reports every invalid field at once, keyed by field name.
func (s *Server) validateRecord(email, password, confirm string) map[string]FieldError {
	fields := map[string]FieldError{}

	switch {
	case email == "":
		fields["email"] = FieldError{Code: CodeRequired, Message: "Cannot be blank."}
	case !isEmail(email):
		fields["email"] = FieldError{Code: CodeIsEmail, Message: "Must be a valid email address."}
	default:
		s.mu.RLock()
		_, taken := s.users[email]
		s.mu.RUnlock()
		if taken {
			fields["email"] = FieldError{Code: CodeNotUnique, Message: "Value must be unique."}
		}
	}

	switch {
	case password == "":
		fields["password"] = FieldError{Code: CodeRequired, Message: "Cannot be blank."}
	case len(password) < models.MinPasswordLen || len(password) > passwd.MaxPasswordLen:
		fields["password"] = FieldError{Code: CodeLengthOutRange, Message: "The length must be between 8 and 72."}
	}

	if confirm != password {
		fields["passwordConfirm"] = FieldError{Code: CodeValuesMismatch, Message: "Values don't match."}
	}
	return fields
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func (s *Server) handleAuthRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := s.parseToken(r.Header.Get("Authorization"))
		if err != nil {
			s.log.Debug("refresh rejected", "err", err)
			ReturnError(w, s.log, UnauthorizedToken)
			return
		}

		s.mu.RLock()
		u, ok := s.byID[payload.Subject]
		s.mu.RUnlock()
		if !ok {
			s.log.Debug("refresh for unknown user", "user_id", payload.Subject)
			ReturnError(w, s.log, UnauthorizedToken)
			return
		}

		s.respondAuth(w, u)
	}
}
