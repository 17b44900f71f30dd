// ABOUTME: Store interfaces and data types for authgate persistence
// ABOUTME: Defines User and Record along with the credential and resource store contracts

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrStoreWrite is returned when a durable write cannot be completed.
// The underlying cause is wrapped alongside it.
var ErrStoreWrite = errors.New("store write failed")

// ErrDuplicateCredential is returned by Register when the email and password
// already match a stored user
var ErrDuplicateCredential = errors.New("credential already registered")

// ErrInvalidBody is returned when a resource body is not a JSON object
var ErrInvalidBody = errors.New("body must be a JSON object")

// User is a registered credential. Records are append-only: never updated, never deleted.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// CredentialStore maps emails to user records.
//
// Emails are not unique on their own: two users may share an email as long as
// their passwords differ. Register rejects an exact (email, password) repeat.
type CredentialStore interface {
	// FindByCredentials returns the first user whose email matches exactly and
	// whose stored hash matches password. ok is false when no record matches.
	FindByCredentials(ctx context.Context, email, password string) (user *User, ok bool, err error)

	// Register appends a user unless one already matches email and password.
	// The check and the append happen atomically; a match returns ErrDuplicateCredential.
	Register(ctx context.Context, email, password string) (*User, error)

	// Append hashes password, assigns id = max(id)+1 (1 on an empty store) and
	// persists the record before returning. Failures wrap ErrStoreWrite.
	Append(ctx context.Context, email, password string) (*User, error)

	// CountUsers returns the number of stored records.
	CountUsers(ctx context.Context) (int, error)

	Close() error
}

// Record is a JSON document stored in a named collection.
// Body always carries the record's "id" field.
type Record struct {
	Collection string
	ID         int64
	Body       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ResourceStore is a generic JSON collection store backing the guarded resource API.
type ResourceStore interface {
	ListRecords(ctx context.Context, collection string, filter map[string]string) ([]*Record, error)
	GetRecord(ctx context.Context, collection string, id int64) (*Record, error)
	CreateRecord(ctx context.Context, collection string, body json.RawMessage) (*Record, error)
	ReplaceRecord(ctx context.Context, collection string, id int64, body json.RawMessage) (*Record, error)
	PatchRecord(ctx context.Context, collection string, id int64, patch json.RawMessage) (*Record, error)
	DeleteRecord(ctx context.Context, collection string, id int64) error
}
