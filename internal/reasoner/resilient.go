// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package reasoner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// ResilientConfig bounds calls to the underlying client.
type ResilientConfig struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxFailures is the consecutive-failure count that trips the breaker.
	MaxFailures uint32
	// Cooldown is how long the breaker stays open before a probe.
	Cooldown time.Duration
}

func (c *ResilientConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
}

// Resilient wraps a Client with a per-attempt timeout, at most one retry
// on a transient failure, and a circuit breaker guarding against a dead
// upstream. Exhausting the retry surfaces an upstream error instead of
// hanging the request.
type Resilient struct {
	inner   Client
	cfg     ResilientConfig
	breaker *gobreaker.CircuitBreaker[string]
	log     *slog.Logger
}

// NewResilient wraps inner. If log is nil, slog.Default is used.
func NewResilient(inner Client, cfg ResilientConfig, log *slog.Logger) *Resilient {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	r := &Resilient{inner: inner, cfg: cfg, log: log}
	r.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "reasoner:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("reasoner circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return r
}

func (r *Resilient) Name() string { return r.inner.Name() }

// Generate runs one attempt plus at most one retry when the first attempt
// failed transiently. A caller cancellation is never retried.
func (r *Resilient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reply, err := r.breaker.Execute(func() (string, error) {
		out, attemptErr := r.attempt(ctx, systemPrompt, userPrompt)
		if attemptErr == nil {
			return out, nil
		}
		if !transient(ctx, attemptErr) {
			return "", attemptErr
		}

		r.log.Warn("reasoner attempt failed, retrying once",
			"provider", r.inner.Name(),
			"error", attemptErr,
		)
		return r.attempt(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", sentraerr.Wrap(err, sentraerr.CodeReasonerUpstreamFailure, "reasoning provider unavailable")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", sentraerr.Wrap(err, sentraerr.CodeReasonerUpstreamTimeout, "reasoning provider timed out")
		}
		return "", sentraerr.Wrap(err, sentraerr.CodeReasonerUpstreamFailure, "reasoning provider failed")
	}
	return reply, nil
}

func (r *Resilient) attempt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.inner.Generate(attemptCtx, systemPrompt, userPrompt)
}

// transient reports whether a failed attempt is worth one more try. A
// cancelled caller context is terminal; an attempt timeout or provider
// error is not.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return err != nil
}
