package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/tidycsv/internal/config"
	"github.com/JonMunkholm/tidycsv/internal/core"
)

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := HashPassword(pw, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return h
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := New(map[string]string{
		"alice": mustHash(t, "wonderland"),
		"bob":   mustHash(t, "builder"),
	}, Options{SessionTTL: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAuthenticate(t *testing.T) {
	s := newTestService(t)

	tests := []struct {
		name    string
		creds   Credentials
		want    string
		wantErr bool
	}{
		{"valid", Credentials{"alice", "wonderland"}, "alice", false},
		{"username trimmed", Credentials{"  bob ", "builder"}, "bob", false},
		{"wrong password", Credentials{"alice", "builder"}, "", true},
		{"unknown user", Credentials{"mallory", "wonderland"}, "", true},
		{"empty", Credentials{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.Authenticate(context.Background(), tt.creds)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("err = %v, want ErrInvalidCredentials", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if id.Username != tt.want {
				t.Errorf("Username = %q, want %q", id.Username, tt.want)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, Options{}); !errors.Is(err, ErrNoUsers) {
		t.Errorf("New(nil) err = %v, want ErrNoUsers", err)
	}
	if _, err := New(map[string]string{"alice": "plaintext"}, Options{}); err == nil {
		t.Error("New accepted a non-bcrypt hash")
	}
}

func TestSessions(t *testing.T) {
	s := newTestService(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	sess, err := s.Login(context.Background(), Credentials{"alice", "wonderland"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Token == "" || !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("session = %+v", sess)
	}

	id, ok := s.Resolve(sess.Token)
	if !ok || id.Username != "alice" {
		t.Errorf("Resolve = %+v, %v", id, ok)
	}
	if _, ok := s.Resolve("not-a-token"); ok {
		t.Error("Resolve accepted an unknown token")
	}

	now = now.Add(time.Hour)
	if _, ok := s.Resolve(sess.Token); ok {
		t.Error("Resolve accepted an expired session")
	}
	if n := s.SweepExpired(); n != 1 {
		t.Errorf("SweepExpired = %d, want 1", n)
	}

	sess, err = s.Login(context.Background(), Credentials{"bob", "builder"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	s.Logout(sess.Token)
	if _, ok := s.Resolve(sess.Token); ok {
		t.Error("Resolve accepted a logged-out session")
	}

	if _, err := s.Login(context.Background(), Credentials{"bob", "nope"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login with wrong password err = %v", err)
	}
}

func TestStartSweeper_StopsOnCancel(t *testing.T) {
	s := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.StartSweeper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestIdentityContext(t *testing.T) {
	s := newTestService(t)
	if _, ok := s.CurrentIdentity(context.Background()); ok {
		t.Error("CurrentIdentity on empty context = true")
	}

	ctx := WithIdentity(context.Background(), core.Identity{Username: "alice"})
	id, ok := s.CurrentIdentity(ctx)
	if !ok || id.Username != "alice" {
		t.Errorf("CurrentIdentity = %+v, %v", id, ok)
	}
}

func TestSessionCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies", len(cookies))
	}
	c := cookies[0]
	if c.Name != SessionCookieName || c.Value != "tok" || !c.HttpOnly || !c.Secure {
		t.Errorf("cookie = %+v", c)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	if tok, ok := TokenFromRequest(req); !ok || tok != "tok" {
		t.Errorf("TokenFromRequest = %q, %v", tok, ok)
	}
	if _, ok := TokenFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Error("TokenFromRequest without cookie = true")
	}

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, false)
	if c := rec.Result().Cookies()[0]; c.MaxAge >= 0 {
		t.Errorf("cleared cookie MaxAge = %d", c.MaxAge)
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Run("admin pair", func(t *testing.T) {
		s, err := NewFromConfig(config.AuthConfig{AdminUser: "admin", AdminPassword: "password123", SessionTTL: time.Minute})
		if err != nil {
			t.Fatalf("NewFromConfig: %v", err)
		}
		if _, err := s.Authenticate(context.Background(), Credentials{"admin", "password123"}); err != nil {
			t.Errorf("Authenticate: %v", err)
		}
		if s.SessionTTL() != time.Minute {
			t.Errorf("SessionTTL = %v", s.SessionTTL())
		}
	})

	t.Run("users file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "users.yaml")
		content := "users:\n  carol: \"" + mustHash(t, "secret") + "\"\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		s, err := NewFromConfig(config.AuthConfig{UsersFile: path, AdminUser: "admin", AdminPassword: "ignored"})
		if err != nil {
			t.Fatalf("NewFromConfig: %v", err)
		}
		if _, err := s.Authenticate(context.Background(), Credentials{"carol", "secret"}); err != nil {
			t.Errorf("Authenticate carol: %v", err)
		}
		if _, err := s.Authenticate(context.Background(), Credentials{"admin", "ignored"}); err == nil {
			t.Error("admin pair should be ignored when a users file is set")
		}
	})

	t.Run("empty users file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "users.toml")
		if err := os.WriteFile(path, []byte("[users]\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFromConfig(config.AuthConfig{UsersFile: path}); !errors.Is(err, ErrNoUsers) {
			t.Errorf("err = %v, want ErrNoUsers", err)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		if _, err := NewFromConfig(config.AuthConfig{AdminUser: "admin"}); !errors.Is(err, ErrNoUsers) {
			t.Errorf("err = %v, want ErrNoUsers", err)
		}
	})
}
