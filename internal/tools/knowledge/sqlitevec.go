// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// vecIndex is an Index backed by SQLite with the vec0 virtual table.
// vec0 KNN is exact at this scale; distance is cosine, matching memIndex.
type vecIndex struct {
	db *sql.DB
}

// NewVecIndexBuilder returns a Builder that materializes corpus vectors
// into a SQLite database at dbPath. Each build recreates the table from
// scratch; the retriever swaps whole snapshots, so the previous index
// keeps serving reads until its Close.
func NewVecIndexBuilder(dbPath string, dimensions int) Builder {
	return func(ctx context.Context, vectors map[string][]float32) (Index, error) {
		db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "opening sqlite db")
		}

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "pinging sqlite db")
		}

		if err := loadVectors(ctx, db, dimensions, vectors); err != nil {
			_ = db.Close()
			return nil, err
		}

		return &vecIndex{db: db}, nil
	}
}

func loadVectors(ctx context.Context, db *sql.DB, dimensions int, vectors map[string][]float32) error {
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS corpus_vectors`); err != nil {
		return sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "dropping stale vector table")
	}

	ddl := fmt.Sprintf(
		`CREATE VIRTUAL TABLE corpus_vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dimensions,
	)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "creating vector table")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for id, vec := range vectors {
		blob, err := sqlite_vec.SerializeFloat32(vec)
		if err != nil {
			return sentraerr.Wrapf(err, sentraerr.CodeKnowledgeIndexFailure, "serializing embedding for %s", id)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO corpus_vectors(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
			return sentraerr.Wrapf(err, sentraerr.CodeStoreDatabaseFailure, "inserting vector %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "committing vector load")
	}
	return nil
}

// Search performs a k-nearest-neighbor query. Equal distances are ordered
// by id ascending, matching the in-memory backend.
func (v *vecIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeKnowledgeQueryInvalid, "serializing query vector")
	}

	const q = `SELECT id, distance
FROM corpus_vectors
WHERE embedding MATCH ? AND k = ?
ORDER BY distance, id`

	rows, err := v.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.DocID, &h.Score); err != nil {
			return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "scanning vector result")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeStoreDatabaseFailure, "iterating vector results")
	}

	return hits, nil
}

func (v *vecIndex) Close() error {
	return v.db.Close()
}
