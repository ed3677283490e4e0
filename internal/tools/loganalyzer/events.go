// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package loganalyzer implements read-only analysis over an append-only,
// timestamp-ordered stream of security events. The event store is an
// external collaborator; this package owns only the algorithms.
package loganalyzer

import (
	"context"
	"slices"
	"time"
)

// EventStatus classifies a security event outcome.
type EventStatus string

const (
	EventSuccess EventStatus = "success"
	EventFailed  EventStatus = "failed"
)

// Event is one immutable security log event.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	User      string      `json:"user"`
	Action    string      `json:"action"`
	Source    string      `json:"source"`
	IP        string      `json:"ip"`
	Status    EventStatus `json:"status"`
	Details   string      `json:"details"`
}

// ActionLoginFailed is the action name a failed authentication event
// carries in the stream.
const ActionLoginFailed = "login_failed"

// EventStore supplies an immutable snapshot of the event stream, ordered
// by timestamp ascending. Implementations never accept writes from this
// package.
type EventStore interface {
	Events(ctx context.Context) ([]Event, error)
	Close() error
}

// MemoryEventStore holds an in-process event snapshot. Events are sorted
// by timestamp once at construction.
type MemoryEventStore struct {
	events []Event
}

// NewMemoryEventStore copies and time-orders the given events.
func NewMemoryEventStore(events []Event) *MemoryEventStore {
	copied := slices.Clone(events)
	slices.SortStableFunc(copied, func(a, b Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return &MemoryEventStore{events: copied}
}

// Events returns the ordered snapshot. Callers must not mutate it.
func (s *MemoryEventStore) Events(_ context.Context) ([]Event, error) {
	return s.events, nil
}

func (s *MemoryEventStore) Close() error { return nil }
