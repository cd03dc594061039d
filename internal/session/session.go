// Package session tracks who is logged in to the portal and persists the
// session cookies between CLI invocations.
package session

import (
	"context"
	"fmt"
	"sync"

	portal "github.com/sapliy/pm-portal/sdks/go"
	"github.com/sapliy/pm-portal/pkg/observability"
)

// Session is the explicit replacement for a process-wide auth context. A
// new Session is loading until the first Probe completes.
type Session struct {
	mu      sync.RWMutex
	user    *portal.SessionUser
	loading bool

	client *portal.Client
	store  Store
	logger *observability.Logger
}

func New(client *portal.Client, store Store, logger *observability.Logger) *Session {
	if store == nil {
		store = &MemoryStore{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Session{client: client, store: store, logger: logger, loading: true}
}

// User returns the logged in user, or nil.
func (s *Session) User() *portal.SessionUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) LoggedIn() bool {
	return s.User() != nil
}

// Restore loads persisted cookies into the client without contacting the
// backend.
func (s *Session) Restore() error {
	st, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if len(st.Cookies) > 0 {
		s.client.SetCookies(st.Cookies)
	}
	return nil
}

// Probe asks the backend who the cookies belong to. Any failure means
// logged out; the error is only logged.
func (s *Session) Probe(ctx context.Context) *portal.SessionUser {
	user, err := s.client.Auth.Me(ctx)
	if err != nil {
		s.logger.Debug("Session probe failed", "error", err)
		user = nil
	}

	s.mu.Lock()
	s.user = user
	s.loading = false
	s.mu.Unlock()
	return user
}

// Login authenticates and persists the resulting cookies. On failure the
// previous state is kept.
func (s *Session) Login(ctx context.Context, email, password string) (*portal.SessionUser, error) {
	user, err := s.client.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.user = user
	s.loading = false
	s.mu.Unlock()

	if err := s.store.Save(State{Email: user.Email, Cookies: s.client.Cookies()}); err != nil {
		s.logger.Warn("Failed to persist session", "error", err)
	}
	return user, nil
}

// Logout ends the session server side, then forgets it locally.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.client.Auth.Logout(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
