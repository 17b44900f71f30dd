// ABOUTME: Per-client token session combining an explicit token with a persisted one
// ABOUTME: The explicit token always wins; captured tokens overwrite the persisted one

package client

import (
	"context"
	"fmt"
)

// Session resolves which token a request carries.
// Sessions share nothing unless they share a TokenStore.
type Session struct {
	explicit string
	store    TokenStore
}

// NewSession creates a session. A nil store gets a fresh MemoryTokenStore.
func NewSession(explicit string, store TokenStore) *Session {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	return &Session{explicit: explicit, store: store}
}

// EffectiveToken returns the explicit token if set, else the persisted one.
func (s *Session) EffectiveToken(ctx context.Context) (string, error) {
	if s.explicit != "" {
		return s.explicit, nil
	}
	token, err := s.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("loading persisted token: %w", err)
	}
	return token, nil
}

// Persist overwrites the persisted token. Last write wins.
func (s *Session) Persist(ctx context.Context, token string) error {
	if err := s.store.Save(ctx, token); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}
	return nil
}

// Store returns the backing token store
func (s *Session) Store() TokenStore {
	return s.store
}
