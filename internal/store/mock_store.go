// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MockStore is an in-memory CredentialStore and ResourceStore for testing.
type MockStore struct {
	mu         sync.RWMutex
	users      []*User
	records    map[string][]*Record // keyed by collection, ordered by id
	lastIDs    map[string]int64     // per-collection high-water mark
	bcryptCost int

	// FailWrites makes every write return ErrStoreWrite
	FailWrites bool
}

var (
	_ CredentialStore = (*MockStore)(nil)
	_ ResourceStore   = (*MockStore)(nil)
)

// NewMockStore creates a new MockStore. Hashing defaults to bcrypt.MinCost to keep tests fast.
func NewMockStore(opts ...Option) *MockStore {
	o := storeOptions{bcryptCost: bcrypt.MinCost}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &MockStore{
		records:    make(map[string][]*Record),
		lastIDs:    make(map[string]int64),
		bcryptCost: o.bcryptCost,
	}
}

// FindByCredentials checks every user sharing the email against password.
func (m *MockStore) FindByCredentials(ctx context.Context, email, password string) (*User, bool, error) {
	m.mu.RLock()
	candidates := make([]User, 0)
	for _, u := range m.users {
		if u.Email == email {
			candidates = append(candidates, *u)
		}
	}
	m.mu.RUnlock()

	for i := range candidates {
		if PasswordMatches(candidates[i].PasswordHash, password) {
			return &candidates[i], true, nil
		}
	}
	return nil, false, nil
}

// Append stores a new user with the next sequential id.
func (m *MockStore) Append(ctx context.Context, email, password string) (*User, error) {
	return m.insertUser(email, password, false)
}

// Register stores a new user unless an existing one matches email and password.
func (m *MockStore) Register(ctx context.Context, email, password string) (*User, error) {
	return m.insertUser(email, password, true)
}

func (m *MockStore) insertUser(email, password string, rejectDuplicate bool) (*User, error) {
	hash, err := HashPassword(password, m.bcryptCost)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var maxID int64
	for _, u := range m.users {
		if rejectDuplicate && u.Email == email && PasswordMatches(u.PasswordHash, password) {
			return nil, ErrDuplicateCredential
		}
		maxID = max(maxID, u.ID)
	}

	if m.FailWrites {
		return nil, fmt.Errorf("%w: writes disabled", ErrStoreWrite)
	}

	u := &User{
		ID:           maxID + 1,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users = append(m.users, u)

	c := *u
	return &c, nil
}

// CountUsers returns the number of stored users
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// Users returns a copy of every stored user
func (m *MockStore) Users() []User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]User, len(m.users))
	for i, u := range m.users {
		out[i] = *u
	}
	return out
}

// Close is a no-op
func (m *MockStore) Close() error {
	return nil
}

// ListRecords returns every record in collection matching filter.
func (m *MockStore) ListRecords(ctx context.Context, collection string, filter map[string]string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0)
	for _, rec := range m.records[collection] {
		if matchesFilter(rec.Body, filter) {
			c := *rec
			out = append(out, &c)
		}
	}
	return out, nil
}

// GetRecord returns a single record or ErrNotFound.
func (m *MockStore) GetRecord(ctx context.Context, collection string, id int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, rec := m.find(collection, id)
	if rec == nil {
		return nil, ErrNotFound
	}
	c := *rec
	return &c, nil
}

// CreateRecord stores body under the next id of collection.
func (m *MockStore) CreateRecord(ctx context.Context, collection string, body json.RawMessage) (*Record, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return nil, fmt.Errorf("%w: writes disabled", ErrStoreWrite)
	}

	now := time.Now().UTC()
	rec := &Record{Collection: collection, ID: m.lastIDs[collection] + 1, CreatedAt: now, UpdatedAt: now}
	if rec.Body, err = encodeObject(obj, rec.ID); err != nil {
		return nil, err
	}
	m.records[collection] = append(m.records[collection], rec)
	m.lastIDs[collection] = rec.ID

	c := *rec
	return &c, nil
}

// ReplaceRecord swaps the whole body of an existing record.
func (m *MockStore) ReplaceRecord(ctx context.Context, collection string, id int64, body json.RawMessage) (*Record, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return m.update(collection, id, func(map[string]any) map[string]any { return obj })
}

// PatchRecord merges the top-level fields of patch into an existing record.
func (m *MockStore) PatchRecord(ctx context.Context, collection string, id int64, patch json.RawMessage) (*Record, error) {
	fields, err := decodeObject(patch)
	if err != nil {
		return nil, err
	}
	return m.update(collection, id, func(current map[string]any) map[string]any {
		return mergeObjects(current, fields)
	})
}

func (m *MockStore) update(collection string, id int64, apply func(map[string]any) map[string]any) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return nil, fmt.Errorf("%w: writes disabled", ErrStoreWrite)
	}

	_, rec := m.find(collection, id)
	if rec == nil {
		return nil, ErrNotFound
	}
	current, err := decodeObject(rec.Body)
	if err != nil {
		return nil, err
	}
	body, err := encodeObject(apply(current), id)
	if err != nil {
		return nil, err
	}
	rec.Body = body
	rec.UpdatedAt = time.Now().UTC()

	c := *rec
	return &c, nil
}

// DeleteRecord removes a record or returns ErrNotFound.
func (m *MockStore) DeleteRecord(ctx context.Context, collection string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return fmt.Errorf("%w: writes disabled", ErrStoreWrite)
	}

	idx, rec := m.find(collection, id)
	if rec == nil {
		return ErrNotFound
	}
	recs := m.records[collection]
	m.records[collection] = append(recs[:idx], recs[idx+1:]...)
	return nil
}

// find must be called with mu held.
func (m *MockStore) find(collection string, id int64) (int, *Record) {
	for i, rec := range m.records[collection] {
		if rec.ID == id {
			return i, rec
		}
	}
	return -1, nil
}
