// Package auth provides session-based login for the web layer.
//
// Accounts are username/bcrypt-hash pairs loaded from a YAML or TOML users
// file, or a single account built from AUTH_ADMIN_USER/AUTH_ADMIN_PASSWORD.
// Sessions live in memory and are identified by a random token carried in
// the session_id cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/tidycsv/internal/config"
	"github.com/JonMunkholm/tidycsv/internal/core"
)

// DefaultSessionTTL applies when Options.SessionTTL is zero.
const DefaultSessionTTL = 12 * time.Hour

var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrNoUsers is returned when no account is configured.
	ErrNoUsers = errors.New("no user accounts configured")
)

// Credentials is a submitted login form.
type Credentials struct {
	Username string
	Password string
}

// Options configures a Service.
type Options struct {
	SessionTTL time.Duration
}

// Service authenticates users and tracks their sessions.
type Service struct {
	users    map[string][]byte
	sessions *sessionStore
	ttl      time.Duration
	now      func() time.Time
}

// New creates a Service over users, a map of username to bcrypt hash.
func New(users map[string]string, opts Options) (*Service, error) {
	if len(users) == 0 {
		return nil, ErrNoUsers
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}

	hashes := make(map[string][]byte, len(users))
	for name, hash := range users {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("user with empty name")
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("user %q: invalid bcrypt hash: %w", name, err)
		}
		hashes[name] = []byte(hash)
	}

	return &Service{
		users:    hashes,
		sessions: newSessionStore(),
		ttl:      opts.SessionTTL,
		now:      time.Now,
	}, nil
}

// NewFromConfig builds a Service from the auth configuration section.
// A users file takes precedence over the admin user/password pair.
func NewFromConfig(cfg config.AuthConfig) (*Service, error) {
	opts := Options{SessionTTL: cfg.SessionTTL}

	if cfg.UsersFile != "" {
		users, err := LoadUsers(cfg.UsersFile)
		if err != nil {
			return nil, err
		}
		slog.Info("loaded user accounts", "file", cfg.UsersFile, "count", len(users))
		return New(users, opts)
	}

	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil, ErrNoUsers
	}
	hash, err := HashPassword(cfg.AdminPassword, bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return New(map[string]string{cfg.AdminUser: hash}, opts)
}

// usersFile is the on-disk account list:
//
//	users:
//	  alice: "$2a$10$..."
type usersFile struct {
	Users map[string]string `yaml:"users" toml:"users"`
}

// LoadUsers reads a YAML or TOML users file.
func LoadUsers(path string) (map[string]string, error) {
	var f usersFile
	if err := config.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if len(f.Users) == 0 {
		return nil, fmt.Errorf("load users from %s: %w", path, ErrNoUsers)
	}
	return f.Users, nil
}

// HashPassword returns the bcrypt hash of password at cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// dummyHash is compared against for unknown users so a miss costs the same
// as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("tidycsv-dummy"), bcrypt.DefaultCost)
	return h
})

// Authenticate checks creds and returns the identity they belong to.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (core.Identity, error) {
	username := strings.TrimSpace(creds.Username)

	hash, ok := s.users[username]
	if !ok {
		hash = dummyHash()
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(creds.Password))
	if !ok || err != nil || username == "" {
		slog.WarnContext(ctx, "login failed", "username", username)
		return core.Identity{}, ErrInvalidCredentials
	}

	return core.Identity{Username: username}, nil
}

// Login authenticates creds and opens a session for them.
func (s *Service) Login(ctx context.Context, creds Credentials) (Session, error) {
	id, err := s.Authenticate(ctx, creds)
	if err != nil {
		return Session{}, err
	}

	sess, err := s.sessions.create(id.Username, s.now().Add(s.ttl))
	if err != nil {
		return Session{}, err
	}
	slog.InfoContext(ctx, "user logged in", "username", id.Username)
	return sess, nil
}

// Resolve returns the identity behind a session token if the session is
// still valid.
func (s *Service) Resolve(token string) (core.Identity, bool) {
	sess, ok := s.sessions.get(token)
	if !ok || !s.now().Before(sess.ExpiresAt) {
		return core.Identity{}, false
	}
	return core.Identity{Username: sess.Username}, true
}

// Logout ends the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(token string) {
	s.sessions.delete(token)
}

// CurrentIdentity returns the identity attached to ctx by the session
// middleware.
func (s *Service) CurrentIdentity(ctx context.Context) (core.Identity, bool) {
	return IdentityFromContext(ctx)
}

// SessionTTL reports how long new sessions stay valid.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// SweepExpired removes expired sessions and returns how many were removed.
func (s *Service) SweepExpired() int {
	return s.sessions.sweep(s.now())
}

// StartSweeper purges expired sessions every interval until ctx is
// cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	slog.Info("session sweeper started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			if n := s.SweepExpired(); n > 0 {
				slog.Debug("expired sessions removed", "count", n, "active", s.sessions.len())
			}
		}
	}
}
