// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package executor runs a validated tool plan under the second policy
// checkpoint. Every call is re-authorized against the permission matrix
// immediately before invocation, so a plan produced by the reasoning
// capability can never widen access: the worst a hostile plan achieves is
// a denied result in the audit trail.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentra-dev/sentra/internal/audit"
	"github.com/sentra-dev/sentra/internal/policy"
	"github.com/sentra-dev/sentra/internal/tools"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
	"github.com/sentra-dev/sentra/pkg/types"
)

const (
	// DefaultMaxConcurrent bounds in-flight tool invocations per request.
	DefaultMaxConcurrent = 4
	// DefaultCallTimeout bounds a single tool invocation.
	DefaultCallTimeout = 15 * time.Second
)

// Options tune executor behavior. Zero values take the defaults.
type Options struct {
	MaxConcurrent int
	CallTimeout   time.Duration
}

// Executor invokes planned tool calls concurrently while preserving plan
// order in the returned results.
type Executor struct {
	registry *tools.Registry
	matrix   *policy.Matrix
	recorder *audit.Recorder
	log      *slog.Logger

	maxConcurrent int
	callTimeout   time.Duration
}

// New creates an Executor. recorder may be nil, in which case tool
// invocations are not audited (tests only; the pipeline always audits).
func New(registry *tools.Registry, matrix *policy.Matrix, recorder *audit.Recorder, log *slog.Logger, opts Options) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Executor{
		registry:      registry,
		matrix:        matrix,
		recorder:      recorder,
		log:           log,
		maxConcurrent: opts.MaxConcurrent,
		callTimeout:   opts.CallTimeout,
	}
}

// Execute runs every call in the plan and returns one result per call,
// in plan order. A failed, denied, or unknown call never aborts its
// siblings; the caller inspects statuses to decide degradation.
func (e *Executor) Execute(ctx context.Context, calls []tools.Call, principal types.Principal, correlationID string) []tools.Result {
	if len(calls) == 0 {
		return nil
	}

	results := make([]tools.Result, len(calls))
	sem := make(chan struct{}, e.maxConcurrent)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call tools.Call) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = e.runOne(ctx, call, principal, correlationID)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (e *Executor) runOne(ctx context.Context, call tools.Call, principal types.Principal, correlationID string) tools.Result {
	role := policy.Role(principal.Role)

	// Second checkpoint. The plan came from untrusted reasoning output,
	// so permission is decided here, not at planning time.
	if !e.matrix.Permitted(role, string(call.Tool)) {
		e.log.Warn("tool call denied by policy",
			"tool", string(call.Tool),
			"role", principal.Role,
			"correlation_id", correlationID,
		)
		res := tools.Result{
			Tool:        call.Tool,
			Status:      tools.ResultDenied,
			ErrorDetail: "role " + principal.Role + " is not permitted to use " + string(call.Tool),
		}
		e.record(ctx, principal, correlationID, call, res, 0)
		return res
	}

	handler, ok := e.registry.Lookup(call.Tool)
	if !ok {
		res := tools.Result{
			Tool:        call.Tool,
			Status:      tools.ResultError,
			ErrorDetail: sentraerr.Errorf(sentraerr.CodeExecutorToolUnknown, "no handler registered for tool %q", call.Tool).Error(),
		}
		e.record(ctx, principal, correlationID, call, res, 0)
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	payload, err := handler.Invoke(callCtx, call.Params)
	elapsed := time.Since(start)

	res := tools.Result{Tool: call.Tool, Duration: elapsed}
	switch {
	case err == nil:
		res.Status = tools.ResultSuccess
		res.Payload = payload
	case callCtx.Err() == context.DeadlineExceeded:
		res.Status = tools.ResultError
		res.ErrorDetail = sentraerr.Wrapf(err, sentraerr.CodeExecutorToolTimeout, "tool %q exceeded %s", call.Tool, e.callTimeout).Error()
	default:
		res.Status = tools.ResultError
		res.ErrorDetail = sentraerr.Wrapf(err, sentraerr.CodeExecutorToolFailure, "tool %q failed", call.Tool).Error()
	}

	if res.Status != tools.ResultSuccess {
		e.log.Warn("tool invocation failed",
			"tool", string(call.Tool),
			"status", string(res.Status),
			"correlation_id", correlationID,
			"detail", res.ErrorDetail,
		)
	}
	e.record(ctx, principal, correlationID, call, res, elapsed)
	return res
}

func (e *Executor) record(ctx context.Context, principal types.Principal, correlationID string, call tools.Call, res tools.Result, elapsed time.Duration) {
	if e.recorder == nil {
		return
	}
	detail := map[string]any{
		"tool":   string(call.Tool),
		"status": string(res.Status),
		"reason": call.Reason,
	}
	if elapsed > 0 {
		detail["duration_ms"] = elapsed.Milliseconds()
	}
	if res.ErrorDetail != "" {
		detail["error"] = res.ErrorDetail
	}
	e.recorder.Record(ctx, &audit.Entry{
		CorrelationID: correlationID,
		User:          principal.ID,
		Role:          principal.Role,
		Stage:         types.StageToolInvoked,
		Outcome:       string(res.Status),
		Detail:        detail,
	})
}
