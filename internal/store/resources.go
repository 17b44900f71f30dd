// ABOUTME: JSON collection storage backing the guarded resource API
// ABOUTME: Records are JSON objects keyed by (collection, id) with sequential per-collection ids

package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ListRecords returns every record in collection whose top-level fields equal the filter values.
func (s *SQLiteStore) ListRecords(ctx context.Context, collection string, filter map[string]string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, id, body, created_at, updated_at
		FROM records
		WHERE collection = ?
		ORDER BY id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if matchesFilter(rec.Body, filter) {
			records = append(records, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// GetRecord returns a single record or ErrNotFound.
func (s *SQLiteStore) GetRecord(ctx context.Context, collection string, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRecord(ctx, s.db, collection, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getRecord(ctx context.Context, q queryer, collection string, id int64) (*Record, error) {
	row := q.QueryRowContext(ctx, `
		SELECT collection, id, body, created_at, updated_at
		FROM records
		WHERE collection = ? AND id = ?
	`, collection, id)
	return scanRecord(row)
}

// CreateRecord stores body under the next id of collection.
func (s *SQLiteStore) CreateRecord(ctx context.Context, collection string, body json.RawMessage) (*Record, error) {
	obj, err := decodeObject(body)
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

	// The high-water mark survives deletes, so ids are never reused
	var lastID int64
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT last_id FROM sequences WHERE collection = ?), 0),
			COALESCE((SELECT MAX(id) FROM records WHERE collection = ?), 0)
		)
	`, collection, collection).Scan(&lastID)
	if err != nil {
		return nil, fmt.Errorf("%w: reading last id: %w", ErrStoreWrite, err)
	}

	now := time.Now().UTC()
	rec := &Record{
		Collection: collection,
		ID:         lastID + 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rec.Body, err = encodeObject(obj, rec.ID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (collection, id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Collection, rec.ID, string(rec.Body), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("%w: inserting record: %w", ErrStoreWrite, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sequences (collection, last_id) VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET last_id = excluded.last_id
	`, rec.Collection, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: advancing sequence: %w", ErrStoreWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing record: %w", ErrStoreWrite, err)
	}
	return rec, nil
}

// ReplaceRecord swaps the whole body of an existing record, keeping its id.
func (s *SQLiteStore) ReplaceRecord(ctx context.Context, collection string, id int64, body json.RawMessage) (*Record, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return s.updateRecord(ctx, collection, id, func(map[string]any) map[string]any {
		return obj
	})
}

// PatchRecord merges the top-level fields of patch into an existing record.
func (s *SQLiteStore) PatchRecord(ctx context.Context, collection string, id int64, patch json.RawMessage) (*Record, error) {
	fields, err := decodeObject(patch)
	if err != nil {
		return nil, err
	}
	return s.updateRecord(ctx, collection, id, func(current map[string]any) map[string]any {
		return mergeObjects(current, fields)
	})
}

func (s *SQLiteStore) updateRecord(ctx context.Context, collection string, id int64, apply func(map[string]any) map[string]any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %w", ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := s.getRecord(ctx, tx, collection, id)
	if err != nil {
		return nil, err
	}

	current, err := decodeObject(rec.Body)
	if err != nil {
		return nil, err
	}
	if rec.Body, err = encodeObject(apply(current), id); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE records SET body = ?, updated_at = ?
		WHERE collection = ? AND id = ?
	`, string(rec.Body), rec.UpdatedAt.Format(time.RFC3339Nano), collection, id)
	if err != nil {
		return nil, fmt.Errorf("%w: updating record: %w", ErrStoreWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing record: %w", ErrStoreWrite, err)
	}
	return rec, nil
}

// DeleteRecord removes a record or returns ErrNotFound.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, collection string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("%w: deleting record: %w", ErrStoreWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var body, createdAt, updatedAt string
	if err := row.Scan(&rec.Collection, &rec.ID, &body, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	rec.Body = json.RawMessage(body)

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

// decodeObject parses body as a JSON object, keeping numbers exact.
func decodeObject(body json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, ErrInvalidBody
	}
	return obj, nil
}

// encodeObject serialises obj with its "id" forced to id.
func encodeObject(obj map[string]any, id int64) (json.RawMessage, error) {
	if obj == nil {
		obj = map[string]any{}
	}
	obj["id"] = id
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

func mergeObjects(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// matchesFilter compares top-level fields with their string form, like a query string would.
func matchesFilter(body json.RawMessage, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	obj, err := decodeObject(body)
	if err != nil {
		return false
	}
	for key, want := range filter {
		got, ok := obj[key]
		if !ok || stringify(got) != want {
			return false
		}
	}
	return true
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return "null"
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}
