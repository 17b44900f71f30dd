// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// Two interfaces cover everything the gateway persists:
//
//   - CredentialStore: append-only users keyed by email (register/login)
//   - ResourceStore: JSON documents in named collections (guarded resource API)
//
// SQLiteStore implements both in a single struct. MockStore is an in-memory
// equivalent for unit tests.
//
// # Credentials
//
// Passwords are never stored in clear text. Append hashes with bcrypt before
// writing, and FindByCredentials compares the candidate password against every
// record sharing the email. Emails are not unique on their own; Register only
// rejects an exact email+password duplicate.
//
// Ids are assigned as max(id)+1 inside a mutual-exclusion boundary (a process
// mutex around a SQL transaction), so concurrent registrations always produce
// distinct, contiguous ids. Register runs its duplicate check inside the same
// boundary, so concurrent identical registrations store exactly one user.
//
// # SQLite Configuration
//
// Two drivers are supported:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// The store enables WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Errors
//
//   - ErrNotFound: requested record does not exist
//   - ErrStoreWrite: a durable write could not complete (wraps the cause)
//   - ErrInvalidBody: a resource body is not a JSON object
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
