// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package audit

import (
	"context"
	"sync"
	"time"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// MemoryStore is an in-process append-only Store. A single append lock
// serializes writers, which gives every entry a global arrival position;
// per-correlation causal order follows from the pipeline appending its
// own entries sequentially.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	closed  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records the entry. Earlier entries are never touched.
func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sentraerr.New(sentraerr.CodeAuditStoreFailure, "audit store closed")
	}

	copied := *entry
	s.entries = append(s.entries, &copied)
	return nil
}

// EntriesFor returns the entries recorded under correlationID, in the
// order they were appended.
func (s *MemoryStore) EntriesFor(_ context.Context, correlationID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.entries {
		if e.CorrelationID == correlationID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

// EntriesSince returns entries with Timestamp >= since, in append order.
func (s *MemoryStore) EntriesSince(_ context.Context, since time.Time) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.entries {
		if !e.Timestamp.Before(since) {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Close marks the store closed; later appends fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
