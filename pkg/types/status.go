// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package types holds small shared vocabulary types used across the
// mediation pipeline and its external surface.
package types

// Status is the terminal outcome of one pipeline execution.
type Status string

const (
	// StatusBlocked means the input sanitizer rejected the raw query.
	StatusBlocked Status = "blocked"
	// StatusDenied means the principal's role had no usable capability
	// for a request that needed tools.
	StatusDenied Status = "denied"
	// StatusCompleted means every planned tool call succeeded.
	StatusCompleted Status = "completed"
	// StatusDegraded means at least one tool call failed or was denied
	// while at least one other succeeded.
	StatusDegraded Status = "degraded"
	// StatusError means the request could not be served at all.
	StatusError Status = "error"
)

// Valid reports whether the status is a known pipeline outcome.
func (s Status) Valid() bool {
	switch s {
	case StatusBlocked, StatusDenied, StatusCompleted, StatusDegraded, StatusError:
		return true
	default:
		return false
	}
}
