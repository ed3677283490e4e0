// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
	"github.com/sentra-dev/sentra/pkg/types"
)

// SQLiteStore persists audit entries in SQLite. The autoincrement seq
// column records arrival order; reads order by it, so retrieval order is
// exactly append order regardless of timestamp resolution.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the audit database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "opening audit db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "pinging audit db")
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	correlation_id TEXT NOT NULL,
	timestamp      TEXT NOT NULL,
	user           TEXT NOT NULL,
	role           TEXT NOT NULL,
	stage          TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	detail         TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_entries(correlation_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "creating audit table")
	}

	return &SQLiteStore{db: db}, nil
}

// Append inserts one entry. There is no update or delete path.
func (s *SQLiteStore) Append(ctx context.Context, entry *Entry) error {
	detail := []byte("{}")
	if len(entry.Detail) > 0 {
		var err error
		detail, err = json.Marshal(entry.Detail)
		if err != nil {
			return sentraerr.Wrap(err, sentraerr.CodeAuditStoreFailure, "marshalling audit detail")
		}
	}

	const q = `INSERT INTO audit_entries(id, correlation_id, timestamp, user, role, stage, outcome, detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		entry.ID,
		entry.CorrelationID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.User,
		entry.Role,
		string(entry.Stage),
		entry.Outcome,
		string(detail),
	)
	if err != nil {
		return sentraerr.Wrap(err, sentraerr.CodeAuditStoreFailure, "appending audit entry")
	}
	return nil
}

// EntriesFor returns the entries for one correlation id in append order.
func (s *SQLiteStore) EntriesFor(ctx context.Context, correlationID string) ([]*Entry, error) {
	const q = `SELECT id, correlation_id, timestamp, user, role, stage, outcome, detail
FROM audit_entries WHERE correlation_id = ? ORDER BY seq`
	return s.query(ctx, q, correlationID)
}

// EntriesSince returns entries recorded at or after since, in append order.
func (s *SQLiteStore) EntriesSince(ctx context.Context, since time.Time) ([]*Entry, error) {
	const q = `SELECT id, correlation_id, timestamp, user, role, stage, outcome, detail
FROM audit_entries WHERE timestamp >= ? ORDER BY seq`
	return s.query(ctx, q, since.UTC().Format(time.RFC3339Nano))
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "querying audit entries")
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var ts, stage, detail string
		if err := rows.Scan(&e.ID, &e.CorrelationID, &ts, &e.User, &e.Role, &stage, &e.Outcome, &detail); err != nil {
			return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "scanning audit entry")
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, sentraerr.Wrapf(err, sentraerr.CodeStoreDatabaseFailure, "parsing audit timestamp %q", ts)
		}
		e.Stage = types.Stage(stage)
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
				return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "unmarshalling audit detail")
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "iterating audit entries")
	}

	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
