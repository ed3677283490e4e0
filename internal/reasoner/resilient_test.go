// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package reasoner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-dev/sentra/internal/reasoner"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// flakyClient fails the first failures calls, then succeeds.
type flakyClient struct {
	failures int
	calls    int
	err      error
	block    bool
}

func (c *flakyClient) Name() string { return "flaky" }

func (c *flakyClient) Generate(ctx context.Context, _, _ string) (string, error) {
	c.calls++
	if c.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if c.calls <= c.failures {
		err := c.err
		if err == nil {
			err = errors.New("transient upstream hiccup")
		}
		return "", err
	}
	return "pong", nil
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	r := reasoner.NewResilient(&flakyClient{}, reasoner.ResilientConfig{}, nil)
	out, err := r.Generate(context.Background(), "sys", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, "flaky", r.Name())
}

func TestGenerate_RetriesOnceOnTransientFailure(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{failures: 1}
	r := reasoner.NewResilient(inner, reasoner.ResilientConfig{}, nil)

	out, err := r.Generate(context.Background(), "sys", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, 2, inner.calls)
}

func TestGenerate_ExhaustedRetrySurfacesUpstreamFailure(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{failures: 10}
	r := reasoner.NewResilient(inner, reasoner.ResilientConfig{}, nil)

	_, err := r.Generate(context.Background(), "sys", "ping")
	require.Error(t, err)
	assert.Equal(t, sentraerr.CodeReasonerUpstreamFailure, sentraerr.CodeOf(err))
	assert.Equal(t, 2, inner.calls, "exactly one retry")
}

func TestGenerate_AttemptTimeout(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{block: true}
	r := reasoner.NewResilient(inner, reasoner.ResilientConfig{Timeout: 20 * time.Millisecond}, nil)

	_, err := r.Generate(context.Background(), "sys", "ping")
	require.Error(t, err)
	assert.Equal(t, sentraerr.CodeReasonerUpstreamTimeout, sentraerr.CodeOf(err))
	assert.Equal(t, 2, inner.calls, "a timed-out attempt is retried once")
}

func TestGenerate_CallerCancellationIsNotRetried(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{block: true}
	r := reasoner.NewResilient(inner, reasoner.ResilientConfig{Timeout: time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Generate(ctx, "sys", "ping")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestGenerate_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{failures: 1000}
	r := reasoner.NewResilient(inner, reasoner.ResilientConfig{
		MaxFailures: 2,
		Cooldown:    time.Hour,
	}, nil)

	for range 2 {
		_, err := r.Generate(context.Background(), "sys", "ping")
		require.Error(t, err)
	}
	callsBefore := inner.calls

	// Breaker is open: calls are refused without touching the upstream.
	_, err := r.Generate(context.Background(), "sys", "ping")
	require.Error(t, err)
	assert.Equal(t, sentraerr.CodeReasonerUpstreamFailure, sentraerr.CodeOf(err))
	assert.Equal(t, callsBefore, inner.calls)
}

func TestGenerate_BreakerRecoversAfterCooldown(t *testing.T) {
	t.Parallel()

	inner := &flakyClient{failures: 4}
	r := reasoner.NewResilient(inner, reasoner.ResilientConfig{
		MaxFailures: 2,
		Cooldown:    50 * time.Millisecond,
	}, nil)

	for range 2 {
		_, err := r.Generate(context.Background(), "sys", "ping")
		require.Error(t, err)
	}

	time.Sleep(80 * time.Millisecond)

	out, err := r.Generate(context.Background(), "sys", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestNew_UnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := reasoner.New(reasoner.Config{Provider: "cohere"})
	require.Error(t, err)
	assert.Equal(t, sentraerr.CodeReasonerNotConfigured, sentraerr.CodeOf(err))
}
