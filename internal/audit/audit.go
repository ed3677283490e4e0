// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package audit provides the append-only, per-request audit trail. Every
// pipeline stage emits exactly one entry under the request's correlation
// id; entries are never mutated or removed, and reading a correlation id
// back yields its entries in recorded order.
package audit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sentra-dev/sentra/pkg/types"
)

// Entry is one audit record. The persisted shape is field-exact:
// correlation_id, timestamp, user, role, stage, outcome, detail.
type Entry struct {
	// ID is a monotonic ULID assigned at append time; it orders entries
	// within and across correlation ids without a wall-clock tie-break.
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
	User          string         `json:"user"`
	Role          string         `json:"role"`
	Stage         types.Stage    `json:"stage"`
	Outcome       string         `json:"outcome"`
	Detail        map[string]any `json:"detail,omitempty"`
}

// Store persists audit entries. Append never reorders earlier entries;
// both read methods return entries in recorded order.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	EntriesFor(ctx context.Context, correlationID string) ([]*Entry, error)
	EntriesSince(ctx context.Context, since time.Time) ([]*Entry, error)
	Close() error
}

// entropy is the shared monotonic ULID source. The ulid reader is not
// safe for concurrent use, so it sits behind its own lock.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewEntryID returns a fresh monotonic ULID string.
func NewEntryID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// FailureEscalationThreshold is the number of consecutive append failures
// after which the failure log level escalates from Warn to Error.
const FailureEscalationThreshold = 3

// Recorder wraps a Store with best-effort append semantics: the pipeline
// must never fail a request because the audit write failed, but persistent
// failures escalate in the log so operators notice.
type Recorder struct {
	store     Store
	log       *slog.Logger
	failCount atomic.Int64
}

// NewRecorder creates a Recorder. If log is nil, slog.Default is used.
func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log}
}

// Record appends one stage entry, assigning its ID and timestamp. The
// context is detached from cancellation so an in-flight write for an
// already-completed stage still lands when the client goes away.
func (r *Recorder) Record(ctx context.Context, entry *Entry) {
	entry.ID = NewEntryID()
	entry.Timestamp = time.Now().UTC()

	if err := r.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		consecutive := r.failCount.Add(1)
		level := slog.LevelWarn
		if consecutive >= FailureEscalationThreshold {
			level = slog.LevelError
		}
		r.log.LogAttrs(ctx, level, "audit store append failed",
			slog.Any("error", err),
			slog.String("correlation_id", entry.CorrelationID),
			slog.String("stage", string(entry.Stage)),
			slog.Int64("consecutive_failures", consecutive),
		)
		return
	}
	r.failCount.Store(0)
}

// FailCount returns the current consecutive append failure count.
// Intended for testing and observability.
func (r *Recorder) FailCount() int64 {
	return r.failCount.Load()
}
