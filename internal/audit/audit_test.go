// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-dev/sentra/internal/audit"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
	"github.com/sentra-dev/sentra/pkg/types"
)

func TestMemoryStore_AppendAndReadBackInOrder(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore()
	rec := audit.NewRecorder(store, nil)
	ctx := context.Background()

	stages := []types.Stage{
		types.StageSanitization,
		types.StagePreCheck,
		types.StagePlanReceived,
		types.StageToolInvoked,
		types.StageResponse,
	}
	for _, stage := range stages {
		rec.Record(ctx, &audit.Entry{
			CorrelationID: "corr-1",
			User:          "alice",
			Role:          "security",
			Stage:         stage,
			Outcome:       "ok",
		})
	}

	entries, err := store.EntriesFor(ctx, "corr-1")
	require.NoError(t, err)
	require.Len(t, entries, len(stages))
	for i, e := range entries {
		assert.Equal(t, stages[i], e.Stage)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestMemoryStore_CorrelationIsolation(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore()
	ctx := context.Background()

	for _, corr := range []string{"a", "b", "a"} {
		require.NoError(t, store.Append(ctx, &audit.Entry{
			ID:            audit.NewEntryID(),
			CorrelationID: corr,
			Timestamp:     time.Now().UTC(),
			Stage:         types.StageSanitization,
		}))
	}

	a, err := store.EntriesFor(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, a, 2)

	b, err := store.EntriesFor(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, b, 1)

	missing, err := store.EntriesFor(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestMemoryStore_ReadsReturnCopies(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &audit.Entry{
		ID:            audit.NewEntryID(),
		CorrelationID: "c",
		Timestamp:     time.Now().UTC(),
		Outcome:       "ok",
	}))

	first, err := store.EntriesFor(ctx, "c")
	require.NoError(t, err)
	first[0].Outcome = "tampered"

	again, err := store.EntriesFor(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "ok", again[0].Outcome)
}

func TestMemoryStore_EntriesSince(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore()
	ctx := context.Background()
	cutoff := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, &audit.Entry{ID: audit.NewEntryID(), CorrelationID: "old", Timestamp: cutoff.Add(-time.Hour)}))
	require.NoError(t, store.Append(ctx, &audit.Entry{ID: audit.NewEntryID(), CorrelationID: "boundary", Timestamp: cutoff}))
	require.NoError(t, store.Append(ctx, &audit.Entry{ID: audit.NewEntryID(), CorrelationID: "new", Timestamp: cutoff.Add(time.Hour)}))

	got, err := store.EntriesSince(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "boundary", got[0].CorrelationID)
	assert.Equal(t, "new", got[1].CorrelationID)
}

func TestMemoryStore_ClosedRejectsAppends(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore()
	require.NoError(t, store.Close())

	err := store.Append(context.Background(), &audit.Entry{ID: audit.NewEntryID()})
	assert.Error(t, err)
	assert.Equal(t, sentraerr.CodeAuditStoreFailure, sentraerr.CodeOf(err))
}

func TestNewEntryID_MonotonicUnderConcurrency(t *testing.T) {
	t.Parallel()

	const perWorker = 200
	const workers = 8
	var mu sync.Mutex
	ids := make([]string, 0, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, audit.NewEntryID())
			}
			mu.Lock()
			ids = append(ids, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate ulid %s", id)
		seen[id] = true
	}
}

func TestRecorder_AppendOrderMatchesRecordOrder(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore()
	rec := audit.NewRecorder(store, nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		rec.Record(ctx, &audit.Entry{CorrelationID: "seq", Stage: types.StageToolInvoked})
	}

	entries, err := store.EntriesFor(ctx, "seq")
	require.NoError(t, err)
	require.Len(t, entries, 50)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].ID, entries[i].ID, "ulids must ascend with append order")
	}
}

type failingStore struct {
	audit.Store
	fail bool
}

func (s *failingStore) Append(ctx context.Context, e *audit.Entry) error {
	if s.fail {
		return sentraerr.New(sentraerr.CodeAuditStoreFailure, "forced failure")
	}
	return s.Store.Append(ctx, e)
}

func TestRecorder_FailureCountEscalatesAndResets(t *testing.T) {
	t.Parallel()
	inner := audit.NewMemoryStore()
	store := &failingStore{Store: inner, fail: true}
	rec := audit.NewRecorder(store, nil)
	ctx := context.Background()

	for i := 0; i < audit.FailureEscalationThreshold+1; i++ {
		rec.Record(ctx, &audit.Entry{CorrelationID: "f"})
	}
	assert.Equal(t, int64(audit.FailureEscalationThreshold+1), rec.FailCount())

	store.fail = false
	rec.Record(ctx, &audit.Entry{CorrelationID: "f"})
	assert.Zero(t, rec.FailCount())
}

func TestRecorder_SurvivesCancelledContext(t *testing.T) {
	t.Parallel()
	store := audit.NewMemoryStore()
	rec := audit.NewRecorder(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec.Record(ctx, &audit.Entry{CorrelationID: "late", Stage: types.StageResponse})

	entries, err := store.EntriesFor(context.Background(), "late")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
