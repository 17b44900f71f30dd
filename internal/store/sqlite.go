// ABOUTME: SQLite implementation of the credential and resource stores
// ABOUTME: Supports the pure-Go modernc driver and the cgo mattn driver with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// SQLiteStore implements CredentialStore and ResourceStore using SQLite
type SQLiteStore struct {
	db         *sql.DB
	logger     *slog.Logger
	bcryptCost int

	// mu serialises "compute next id, insert" so concurrent appends never
	// observe the same max(id). Readers take the read side.
	mu sync.RWMutex
}

var (
	_ CredentialStore = (*SQLiteStore)(nil)
	_ ResourceStore   = (*SQLiteStore)(nil)
)

// Option configures a SQLiteStore or MockStore
type Option func(*storeOptions)

type storeOptions struct {
	driver     string
	bcryptCost int
	logger     *slog.Logger
}

// WithDriver selects the database/sql driver (DriverModernc or DriverMattn)
func WithDriver(driver string) Option {
	return func(o *storeOptions) {
		o.driver = driver
	}
}

// WithBcryptCost sets the cost used when hashing new passwords
func WithBcryptCost(cost int) Option {
	return func(o *storeOptions) {
		o.bcryptCost = cost
	}
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

func resolveOptions(opts []Option) storeOptions {
	o := storeOptions{
		driver:     DriverModernc,
		bcryptCost: DefaultBcryptCost,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "store")
	return o
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed; ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	o := resolveOptions(opts)

	switch o.driver {
	case DriverModernc, DriverMattn:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", o.driver)
	}

	inMemory := path == ":memory:"
	if !inMemory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(o.driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		logger:     o.logger,
		bcryptCost: o.bcryptCost,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	o.logger.Info("SQLite store initialized", "path", path, "driver", o.driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY,
			email         TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id         INTEGER NOT NULL,
			body       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (collection, id)
		);

		CREATE TABLE IF NOT EXISTS sequences (
			collection TEXT PRIMARY KEY,
			last_id    INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// FindByCredentials checks every record sharing the email against password.
func (s *SQLiteStore) FindByCredentials(ctx context.Context, email, password string) (*User, bool, error) {
	candidates, err := s.usersByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}

	for _, u := range candidates {
		if PasswordMatches(u.PasswordHash, password) {
			return u, true, nil
		}
	}
	return nil, false, nil
}

func (s *SQLiteStore) usersByEmail(ctx context.Context, email string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = ?
		ORDER BY id
	`, email)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Append stores a new user with the next sequential id.
func (s *SQLiteStore) Append(ctx context.Context, email, password string) (*User, error) {
	return s.insertUser(ctx, email, password, false)
}

// Register stores a new user unless an existing one matches email and password.
func (s *SQLiteStore) Register(ctx context.Context, email, password string) (*User, error) {
	return s.insertUser(ctx, email, password, true)
}

func (s *SQLiteStore) insertUser(ctx context.Context, email, password string, rejectDuplicate bool) (*User, error) {
	// Hash outside the critical section
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %w", ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	if rejectDuplicate {
		dup, err := hasCredential(ctx, tx, email, password)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, ErrDuplicateCredential
		}
	}

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(id) FROM users`).Scan(&maxID); err != nil {
		return nil, fmt.Errorf("%w: reading last id: %w", ErrStoreWrite, err)
	}

	user := &User{
		ID:           maxID.Int64 + 1,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.Email, user.PasswordHash, user.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("%w: inserting user: %w", ErrStoreWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing user: %w", ErrStoreWrite, err)
	}

	s.logger.Debug("user appended", "id", user.ID)
	return user, nil
}

// hasCredential reports whether any user with email has a hash matching password.
func hasCredential(ctx context.Context, tx *sql.Tx, email, password string) (bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT password_hash FROM users WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return false, fmt.Errorf("scanning user: %w", err)
		}
		if PasswordMatches(hash, password) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// CountUsers returns the number of stored users
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// ListUsers returns every user ordered by id
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	u.CreatedAt = t
	return &u, nil
}
