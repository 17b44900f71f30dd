// ABOUTME: Tests for atomic credential registration
// ABOUTME: Runs duplicate rejection and concurrent registration against SQLiteStore and MockStore

package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func credentialStores(t *testing.T) map[string]CredentialStore {
	t.Helper()
	sqlite := newTestStore(t)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]CredentialStore{
		"sqlite": sqlite,
		"mock":   NewMockStore(),
	}
}

func TestRegister_RejectsExactDuplicate(t *testing.T) {
	for name, s := range credentialStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			u, err := s.Register(ctx, "a@example.com", "pw")
			require.NoError(t, err)
			assert.Equal(t, int64(1), u.ID)

			_, err = s.Register(ctx, "a@example.com", "pw")
			assert.ErrorIs(t, err, ErrDuplicateCredential)

			// Same email with a different password is a distinct credential
			u, err = s.Register(ctx, "a@example.com", "other")
			require.NoError(t, err)
			assert.Equal(t, int64(2), u.ID)

			n, err := s.CountUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestRegister_ConcurrentDuplicatesStoreOne(t *testing.T) {
	for name, s := range credentialStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			const n = 8
			start := make(chan struct{})
			errs := make(chan error, n)
			var wg sync.WaitGroup
			for range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := s.Register(ctx, "same@example.com", "pw")
					errs <- err
				}()
			}
			close(start)
			wg.Wait()
			close(errs)

			var ok, dup int
			for err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrDuplicateCredential):
					dup++
				default:
					t.Fatalf("unexpected Register error: %v", err)
				}
			}
			assert.Equal(t, 1, ok)
			assert.Equal(t, n-1, dup)

			count, err := s.CountUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}
