// Package session holds the authenticated connection state: the RPC client,
// the introspector, and the credential config. Accessors fail with a
// not-authenticated error while the session is down.
package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/odrift/odrift/pkg/rpc"
	"github.com/odrift/odrift/pkg/schema"
)

// Environment variable names for credential construction.
const (
	EnvURL      = "ODRIFT_URL"
	EnvDatabase = "ODRIFT_DB"
	EnvUsername = "ODRIFT_USER"
	EnvPassword = "ODRIFT_PASSWORD"
)

// ConfigFromEnv builds a connection config from the environment. The second
// return is false unless all four variables are present.
func ConfigFromEnv() (rpc.Config, bool) {
	cfg := rpc.Config{
		URL:      os.Getenv(EnvURL),
		Database: os.Getenv(EnvDatabase),
		Username: os.Getenv(EnvUsername),
		Password: os.Getenv(EnvPassword),
	}
	complete := cfg.URL != "" && cfg.Database != "" && cfg.Username != "" && cfg.Password != ""
	return cfg, complete
}

// Session owns its client and introspector; their lifetimes equal the
// authenticated interval. Each caller should construct its own Session
// rather than sharing a process-global one.
type Session struct {
	logger    zerolog.Logger
	validate  *validator.Validate
	newClient func() rpc.Client

	mu           sync.RWMutex
	client       rpc.Client
	introspector *schema.Introspector
	cfg          rpc.Config
	uid          int64
	connectedAt  time.Time
	live         bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger.With().Str("component", "session").Logger()
	}
}

// WithClientFactory overrides how the session constructs its client. Used in
// tests to inject a mock.
func WithClientFactory(factory func() rpc.Client) SessionOption {
	return func(s *Session) { s.newClient = factory }
}

// New creates a disconnected session.
func New(opts ...SessionOption) *Session {
	s := &Session{
		logger:   zerolog.Nop(),
		validate: validator.New(),
		newClient: func() rpc.Client {
			return rpc.NewHTTPClient()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate validates the config, discards any prior session, and opens
// a new one. On failure the session is left disconnected.
func (s *Session) Authenticate(ctx context.Context, cfg rpc.Config) (*rpc.AuthResult, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return nil, rpc.NewInvalidInputError("incomplete connection config: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Discard the prior session first so its client cannot leak.
	if s.live {
		_ = s.client.Logout(ctx)
	}
	s.live = false
	s.client = nil
	s.introspector = nil
	s.uid = 0

	client := s.newClient()
	auth, err := client.Authenticate(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.client = client
	s.introspector = schema.NewIntrospector(client, schema.WithLogger(s.logger))
	s.cfg = cfg
	s.uid = auth.UID
	s.connectedAt = time.Now()
	s.live = true

	s.logger.Info().
		Str("database", cfg.Database).
		Int64("uid", auth.UID).
		Msg("session established")
	return auth, nil
}

// Logout discards the session. Safe to call unconditionally; a logout on a
// disconnected session is a no-op.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return nil
	}
	err := s.client.Logout(ctx)
	s.live = false
	s.client = nil
	s.introspector = nil
	s.uid = 0
	return err
}

// Authenticated reports whether the session is live.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Client returns the session's RPC client.
func (s *Session) Client() (rpc.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.live {
		return nil, rpc.NewNotAuthenticatedError("client")
	}
	return s.client, nil
}

// Introspector returns the session's schema introspector.
func (s *Session) Introspector() (*schema.Introspector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.live {
		return nil, rpc.NewNotAuthenticatedError("introspector")
	}
	return s.introspector, nil
}

// Status describes the session for callers and the CLI.
type Status struct {
	Connected     bool      `json:"connected"`
	Authenticated bool      `json:"authenticated"`
	URL           string    `json:"url,omitempty"`
	Database      string    `json:"database,omitempty"`
	UID           int64     `json:"uid,omitempty"`
	ConnectedAt   time.Time `json:"connected_at,omitempty"`
}

// Status reports the current session state. It never fails, so it can be
// called on a disconnected session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.live {
		return Status{}
	}
	return Status{
		Connected:     true,
		Authenticated: true,
		URL:           s.cfg.URL,
		Database:      s.cfg.Database,
		UID:           s.uid,
		ConnectedAt:   s.connectedAt,
	}
}
