// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package loganalyzer

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// SQLiteEventStore reads the event stream from a SQLite database. The
// table is written by an external collector; this store only reads.
type SQLiteEventStore struct {
	db *sql.DB
}

// NewSQLiteEventStore opens the event database at dbPath and ensures the
// events table exists so a fresh deployment starts with an empty stream.
func NewSQLiteEventStore(dbPath string) (*SQLiteEventStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "opening event db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "pinging event db")
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS security_events (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	user      TEXT NOT NULL,
	action    TEXT NOT NULL,
	source    TEXT NOT NULL,
	ip        TEXT NOT NULL,
	status    TEXT NOT NULL,
	details   TEXT NOT NULL DEFAULT ''
)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "creating events table")
	}

	return &SQLiteEventStore{db: db}, nil
}

// Events returns the full stream ordered by timestamp, then insertion
// order for same-second events.
func (s *SQLiteEventStore) Events(ctx context.Context) ([]Event, error) {
	const q = `SELECT timestamp, user, action, source, ip, status, details
FROM security_events
ORDER BY timestamp, seq`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "querying events")
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var ev Event
		var ts string
		if err := rows.Scan(&ts, &ev.User, &ev.Action, &ev.Source, &ev.IP, &ev.Status, &ev.Details); err != nil {
			return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "scanning event")
		}
		ev.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, sentraerr.Wrapf(err, sentraerr.CodeStoreDatabaseFailure, "parsing event timestamp %q", ts)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "iterating events")
	}

	return events, nil
}

func (s *SQLiteEventStore) Close() error {
	return s.db.Close()
}
