// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package types

// Stage identifies a step of the mediation pipeline for audit purposes.
type Stage string

const (
	// StageSanitization is the input sanitizer verdict.
	StageSanitization Stage = "sanitization"
	// StagePreCheck is the capability pre-check before planning.
	StagePreCheck Stage = "pre_check"
	// StagePlanReceived is the validated (or rejected) tool plan.
	StagePlanReceived Stage = "plan_received"
	// StageToolInvoked is one tool invocation outcome.
	StageToolInvoked Stage = "tool_invoked"
	// StageResponse is the final response status of the request.
	StageResponse Stage = "response"
)

// Valid reports whether the stage is a known pipeline stage.
func (s Stage) Valid() bool {
	switch s {
	case StageSanitization, StagePreCheck, StagePlanReceived, StageToolInvoked, StageResponse:
		return true
	default:
		return false
	}
}

// Principal is the authenticated identity a request runs under.
// It is supplied by the authentication collaborator and trusted
// unconditionally for the lifetime of the request.
type Principal struct {
	ID   string
	Role string
}
