package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one logged-in browser.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]Session)}
}

func (s *sessionStore) create(username string, expires time.Time) (Session, error) {
	token, err := uuid.NewRandom()
	if err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}

	sess := Session{Token: token.String(), Username: username, ExpiresAt: expires}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *sessionStore) get(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	return sess, ok
}

func (s *sessionStore) delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func (s *sessionStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

func (s *sessionStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
