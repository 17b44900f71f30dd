// ABOUTME: Durable and in-memory homes for the latest issued access token
// ABOUTME: FileTokenStore writes a single access_token key atomically with 0600 permissions

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// TokenStore persists the most recent access token.
// Load returns "" with a nil error when nothing has been saved.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
}

// MemoryTokenStore keeps the token for the life of the process.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *MemoryTokenStore) Save(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// tokenFile is the on-disk layout
type tokenFile struct {
	AccessToken string `json:"access_token"`
}

// FileTokenStore keeps the token in a small JSON file.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore stores the token at path. The file is created on first Save.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the backing file path
func (f *FileTokenStore) Path() string {
	return f.path
}

func (f *FileTokenStore) Load(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parsing token file %s: %w", f.path, err)
	}
	return tf.AccessToken, nil
}

// Save replaces the file contents via a temp file and rename.
func (f *FileTokenStore) Save(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(tokenFile{AccessToken: token})
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(f.path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}
