// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package pipeline mediates every request through a fixed stage order:
// sanitization, pre-decision policy check, reasoning, plan validation,
// re-authorized execution, and synthesis. Each stage short-circuits on
// its own terms and every stage lands in the audit trail under one
// correlation id, including the failure paths.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sentra-dev/sentra/internal/audit"
	"github.com/sentra-dev/sentra/internal/executor"
	"github.com/sentra-dev/sentra/internal/planner"
	"github.com/sentra-dev/sentra/internal/policy"
	"github.com/sentra-dev/sentra/internal/sanitize"
	"github.com/sentra-dev/sentra/internal/tools"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
	"github.com/sentra-dev/sentra/pkg/types"
)

// Result is the pipeline's answer for one request.
type Result struct {
	CorrelationID string         `json:"correlation_id"`
	Status        types.Status   `json:"status"`
	Response      string         `json:"response"`
	ToolsUsed     []string       `json:"tools_used,omitempty"`
	ToolResults   []tools.Result `json:"tool_results,omitempty"`
}

const (
	blockedResponse = "Your request was blocked by input validation. Please rephrase your question without meta-instructions."

	degradedResponse = "Tool results were gathered but the response could not be fully composed. Raw tool output is attached."
)

// Pipeline wires the mediation stages together.
type Pipeline struct {
	sanitizer *sanitize.Sanitizer
	matrix    *policy.Matrix
	registry  *tools.Registry
	planner   *planner.Planner
	executor  *executor.Executor
	recorder  *audit.Recorder
	log       *slog.Logger
}

// New creates a Pipeline. All collaborators are required except log.
func New(
	sanitizer *sanitize.Sanitizer,
	matrix *policy.Matrix,
	registry *tools.Registry,
	plan *planner.Planner,
	exec *executor.Executor,
	recorder *audit.Recorder,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		sanitizer: sanitizer,
		matrix:    matrix,
		registry:  registry,
		planner:   plan,
		executor:  exec,
		recorder:  recorder,
		log:       log,
	}
}

// Handle mediates one request end to end. It never returns an error for
// blocked or denied requests; those are terminal statuses with audited
// reasons. An error means the pipeline itself could not complete and the
// partial Result carries the correlation id for the trail.
func (p *Pipeline) Handle(ctx context.Context, rawQuery string, principal types.Principal) (Result, error) {
	correlationID := uuid.NewString()
	role := policy.Role(principal.Role)
	res := Result{CorrelationID: correlationID}

	log := p.log.With(
		"correlation_id", correlationID,
		"user", principal.ID,
		"role", principal.Role,
	)

	// Stage 1: sanitization. A block ends the request before any
	// reasoning or tool stage runs; every exit path still closes the
	// trail with a response entry carrying the terminal status.
	verdict := p.sanitizer.Evaluate(rawQuery)
	p.recordStage(ctx, principal, correlationID, types.StageSanitization, outcomeOf(verdict.Allowed), map[string]any{
		"reason":       verdict.Reason,
		"matched_rule": verdict.MatchedRule,
	})
	if !verdict.Allowed {
		log.Warn("request blocked by sanitizer", "rule", verdict.MatchedRule)
		res.Status = types.StatusBlocked
		res.Response = blockedResponse
		p.recordStage(ctx, principal, correlationID, types.StageResponse, string(res.Status), map[string]any{
			"matched_rule": verdict.MatchedRule,
		})
		return res, nil
	}

	// Stage 2: pre-decision check. Unknown roles and roles with no
	// tool permission at all stop here; the reasoning capability is
	// never consulted for them.
	if !role.Valid() {
		p.recordStage(ctx, principal, correlationID, types.StagePreCheck, "denied", map[string]any{
			"reason": "unknown role",
		})
		res.Status = types.StatusDenied
		p.recordStage(ctx, principal, correlationID, types.StageResponse, string(res.Status), nil)
		return res, sentraerr.New(sentraerr.CodePolicyRoleUnknown,
			"unknown role "+principal.Role,
			sentraerr.FieldCorrelationID(correlationID), sentraerr.FieldRole(principal.Role))
	}
	allTools := p.registry.IDs()
	if !p.matrix.AnyPermitted(role, allTools) {
		p.recordStage(ctx, principal, correlationID, types.StagePreCheck, "denied", map[string]any{
			"reason": "role has no tool permissions",
		})
		log.Warn("request denied before reasoning")
		res.Status = types.StatusDenied
		p.recordStage(ctx, principal, correlationID, types.StageResponse, string(res.Status), nil)
		return res, sentraerr.New(sentraerr.CodePolicyRoleDenied,
			"role "+principal.Role+" has no tool permissions",
			sentraerr.FieldCorrelationID(correlationID), sentraerr.FieldRole(principal.Role))
	}
	permitted := p.matrix.PermittedOf(role, allTools)
	p.recordStage(ctx, principal, correlationID, types.StagePreCheck, "allowed", map[string]any{
		"permitted_tools": permitted,
	})

	// Stage 3: reasoning decision over the role-filtered catalog.
	plan, err := p.decide(ctx, rawQuery, role, permitted, principal, correlationID)
	if err != nil {
		res.Status = types.StatusError
		res.Response = "The request could not be processed right now. Please retry."
		p.recordStage(ctx, principal, correlationID, types.StageResponse, string(res.Status), nil)
		return res, err
	}

	// Stage 4: execution under the second checkpoint.
	var results []tools.Result
	if plan.NeedsTools {
		results = p.executor.Execute(ctx, plan.Calls, principal, correlationID)
	}
	res.ToolResults = results
	for _, r := range results {
		if r.Status == tools.ResultSuccess {
			res.ToolsUsed = append(res.ToolsUsed, string(r.Tool))
		}
	}

	// Stage 5: synthesis. A synthesis failure after successful tool
	// calls degrades rather than errors: the caller still gets the
	// gathered data.
	answer, synthErr := p.planner.Synthesize(ctx, rawQuery, role, results)
	res.Status = statusOf(results, synthErr)
	if synthErr != nil {
		log.Error("synthesis failed", "error", synthErr)
		answer = degradedResponse
	}
	res.Response = answer

	p.recordStage(ctx, principal, correlationID, types.StageResponse, string(res.Status), map[string]any{
		"tools_used": res.ToolsUsed,
	})
	log.Info("request completed", "status", string(res.Status), "tools_used", res.ToolsUsed)
	return res, nil
}

// decide runs the reasoning stage and converts a rejection into the
// fail-closed no-tools plan. Upstream failure is the only error.
func (p *Pipeline) decide(ctx context.Context, query string, role policy.Role, permitted []string, principal types.Principal, correlationID string) (*planner.Plan, error) {
	catalog := make([]tools.CatalogEntry, 0, len(permitted))
	for _, entry := range p.registry.Catalog() {
		for _, t := range permitted {
			if string(entry.ID) == t {
				catalog = append(catalog, entry)
			}
		}
	}

	decision, err := p.planner.Decide(ctx, query, role, catalog)
	if err != nil {
		p.recordStage(ctx, principal, correlationID, types.StagePlanReceived, "error", map[string]any{
			"error": err.Error(),
		})
		return nil, sentraerr.Wrap(err, sentraerr.CodeReasonerUpstreamFailure, "reasoning decision failed",
			sentraerr.FieldCorrelationID(correlationID))
	}

	if decision.Rejected() {
		p.recordStage(ctx, principal, correlationID, types.StagePlanReceived, "rejected", map[string]any{
			"reason": decision.Rejection.Reason,
			"raw":    decision.Rejection.Raw,
		})
		return planner.NoToolsPlan(), nil
	}

	planned := make([]string, 0, len(decision.Plan.Calls))
	for _, c := range decision.Plan.Calls {
		planned = append(planned, string(c.Tool))
	}
	p.recordStage(ctx, principal, correlationID, types.StagePlanReceived, "accepted", map[string]any{
		"needs_tools":   decision.Plan.NeedsTools,
		"planned_tools": planned,
	})
	return decision.Plan, nil
}

// statusOf derives the terminal status from execution and synthesis
// outcomes. Any success among the tool results keeps the request out of
// the error status; all-failed execution or failed synthesis over a
// non-empty plan degrades.
func statusOf(results []tools.Result, synthErr error) types.Status {
	if len(results) == 0 {
		if synthErr != nil {
			return types.StatusError
		}
		return types.StatusCompleted
	}

	var succeeded, denied int
	for _, r := range results {
		switch r.Status {
		case tools.ResultSuccess:
			succeeded++
		case tools.ResultDenied:
			denied++
		}
	}
	switch {
	case denied == len(results):
		return types.StatusDenied
	case succeeded == len(results) && synthErr == nil:
		return types.StatusCompleted
	default:
		return types.StatusDegraded
	}
}

func outcomeOf(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "blocked"
}

func (p *Pipeline) recordStage(ctx context.Context, principal types.Principal, correlationID string, stage types.Stage, outcome string, detail map[string]any) {
	p.recorder.Record(ctx, &audit.Entry{
		CorrelationID: correlationID,
		User:          principal.ID,
		Role:          principal.Role,
		Stage:         stage,
		Outcome:       outcome,
		Detail:        detail,
	})
}
