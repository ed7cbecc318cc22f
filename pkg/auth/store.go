// Package auth caches the bearer token used against the catalog API.
//
// A Store exchanges a username and password for an access token with the
// Auth0 resource-owner password grant and keeps it until it expires. The
// store is explicitly constructed and shared by reference; it is safe for
// concurrent use and performs at most one exchange at a time.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
)

// DefaultTTL is used when the identity provider omits expires_in and the
// token carries no readable exp claim.
const DefaultTTL = 24 * time.Hour

// Config holds the static settings for the password grant.
type Config struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Audience     string
	Scope        string

	// Username and Password are optional. When either is empty the store
	// falls back to its Prompter.
	Username string
	Password string

	DefaultTTL time.Duration
	Timeout    time.Duration
}

// Credential is a bearer token with its expiry.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the credential can be used at now.
func (c Credential) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// Store caches one credential and refreshes it on demand.
type Store struct {
	cfg      Config
	clock    clockwork.Clock
	prompter Prompter
	rest     *resty.Client
	logger   *slog.Logger

	mu   sync.Mutex
	cred *Credential
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for expiry decisions.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithPrompter sets the interactive credential source.
func WithPrompter(p Prompter) Option {
	return func(s *Store) { s.prompter = p }
}

// WithRestClient replaces the resty client used for the token exchange.
func WithRestClient(rc *resty.Client) Option {
	return func(s *Store) { s.rest = rc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a credential store. No exchange happens until Token is
// called.
func NewStore(cfg Config, opts ...Option) *Store {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Scope == "" {
		cfg.Scope = "openid email profile"
	}
	s := &Store{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rest == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		s.rest = resty.New().SetTimeout(timeout)
	}
	return s
}

// Token returns the cached token while it is valid and otherwise performs
// one exchange. Concurrent callers wait for an in-flight exchange and share
// its result.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.cred != nil && s.cred.Valid(now) {
		return s.cred.Token, nil
	}

	if err := s.checkConfig(); err != nil {
		return "", err
	}

	username, password, err := s.credentials(ctx)
	if err != nil {
		return "", err
	}

	cred, err := s.exchange(ctx, username, password)
	if err != nil {
		return "", err
	}
	s.cred = &cred
	s.logger.Debug("obtained access token", "expires_at", cred.ExpiresAt)
	return cred.Token, nil
}

// Invalidate drops the cached credential if it still holds token. A token
// that was already replaced by a concurrent refresh is left alone.
func (s *Store) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred != nil && s.cred.Token == token {
		s.cred = nil
	}
}

// Credential returns a copy of the cached credential, if any.
func (s *Store) Credential() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

func (s *Store) checkConfig() error {
	var missing []string
	if s.cfg.Domain == "" {
		missing = append(missing, "AUTH0_DOMAIN")
	}
	if s.cfg.ClientID == "" {
		missing = append(missing, "AUTH0_CLIENT_ID")
	}
	if s.cfg.ClientSecret == "" {
		missing = append(missing, "AUTH0_CLIENT_SECRET")
	}
	if s.cfg.Audience == "" {
		missing = append(missing, "API_AUDIENCE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrAuthentication, strings.Join(missing, ", "))
	}
	return nil
}

// credentials returns the configured username and password, prompting for
// whichever is missing.
func (s *Store) credentials(ctx context.Context) (string, string, error) {
	if s.cfg.Username != "" && s.cfg.Password != "" {
		return s.cfg.Username, s.cfg.Password, nil
	}
	if s.prompter == nil {
		return "", "", ErrNoCredentials
	}
	username, password, err := s.prompter.PromptCredentials(ctx, s.cfg.Username)
	if err != nil {
		return "", "", fmt.Errorf("%w: prompting for credentials: %w", ErrAuthentication, err)
	}
	if username == "" || password == "" {
		return "", "", ErrNoCredentials
	}
	return username, password, nil
}
