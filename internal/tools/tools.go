// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package tools defines the closed registry of privileged tools the
// pipeline may dispatch to. Tool identifiers are a typed, enumerated set
// so an unknown identifier is an explicit error path rather than a
// runtime string miss.
package tools

import (
	"context"
	"time"
)

// ID identifies one registered tool.
type ID string

const (
	IDKnowledgeBase ID = "knowledge_base"
	IDLogAnalyzer   ID = "log_analyzer"
)

// Valid reports whether the id names a known tool.
func (id ID) Valid() bool {
	switch id {
	case IDKnowledgeBase, IDLogAnalyzer:
		return true
	default:
		return false
	}
}

// CatalogEntry describes a tool for the planner's bounded, role-aware
// tool catalog.
type CatalogEntry struct {
	ID          ID
	Description string
}

// Handler executes one tool. Implementations must be safe for concurrent
// use and must honor ctx cancellation.
type Handler interface {
	ID() ID
	Describe() CatalogEntry
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// Call is one validated entry of a tool plan.
type Call struct {
	Tool   ID
	Params map[string]any
	Reason string
}

// ResultStatus classifies one tool invocation outcome.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
	ResultDenied  ResultStatus = "denied"
)

// Result is the outcome of one tool invocation. A denied call produces a
// Result with Status=ResultDenied rather than disappearing, so both the
// response synthesizer and the audit trail see it.
type Result struct {
	Tool        ID
	Status      ResultStatus
	Payload     any
	Duration    time.Duration
	ErrorDetail string
}

// Registry is the closed mapping from tool id to handler. It is built
// once at startup and read-only thereafter.
type Registry struct {
	handlers map[ID]Handler
}

// NewRegistry builds a Registry from the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[ID]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.ID()] = h
	}
	return r
}

// Lookup returns the handler for id, or false if id is not registered.
func (r *Registry) Lookup(id ID) (Handler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}

// IDs returns the registered tool ids in stable declaration order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.handlers))
	for _, id := range []ID{IDKnowledgeBase, IDLogAnalyzer} {
		if _, ok := r.handlers[id]; ok {
			out = append(out, string(id))
		}
	}
	return out
}

// Catalog returns catalog entries for every registered tool, in stable
// declaration order.
func (r *Registry) Catalog() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(r.handlers))
	for _, id := range []ID{IDKnowledgeBase, IDLogAnalyzer} {
		if h, ok := r.handlers[id]; ok {
			out = append(out, h.Describe())
		}
	}
	return out
}
