// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package knowledge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-dev/sentra/internal/tools/knowledge"
)

func testDocs() []knowledge.Document {
	return []knowledge.Document{
		{ID: "phishing_policy", Title: "Phishing Response", Content: "phishing email report suspicious links quarantine", Category: "policy"},
		{ID: "password_policy", Title: "Password Policy", Content: "password rotation complexity requirements vault", Category: "policy"},
		{ID: "breach_playbook", Title: "Breach Playbook", Content: "data breach containment notification forensics", Category: "playbook"},
	}
}

func newTestRetriever(t *testing.T) *knowledge.Retriever {
	t.Helper()
	r, err := knowledge.NewRetriever(context.Background(),
		knowledge.NewHashEmbedder(128), knowledge.NewMemIndex, testDocs())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSearch_RanksByTermOverlap(t *testing.T) {
	t.Parallel()
	r := newTestRetriever(t)

	docs, err := r.Search(context.Background(), "how do I report a phishing email", 3)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "phishing_policy", docs[0].ID)
	// Scores are cosine distances, ascending.
	for i := 1; i < len(docs); i++ {
		assert.LessOrEqual(t, docs[i-1].Score, docs[i].Score)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	t.Parallel()
	r := newTestRetriever(t)

	first, err := r.Search(context.Background(), "password rotation", 3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Search(context.Background(), "password rotation", 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearch_TiesBreakByDocID(t *testing.T) {
	t.Parallel()

	// Identical contents embed identically, so every distance ties and
	// ordering must fall back to id ascending.
	docs := []knowledge.Document{
		{ID: "c", Content: "identical text"},
		{ID: "a", Content: "identical text"},
		{ID: "b", Content: "identical text"},
	}
	r, err := knowledge.NewRetriever(context.Background(),
		knowledge.NewHashEmbedder(64), knowledge.NewMemIndex, docs)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.Search(context.Background(), "identical text", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestSearch_KBoundsResults(t *testing.T) {
	t.Parallel()
	r := newTestRetriever(t)

	docs, err := r.Search(context.Background(), "policy", 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	// k larger than the corpus returns everything.
	docs, err = r.Search(context.Background(), "policy", 50)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestSearch_RejectsInvalidInput(t *testing.T) {
	t.Parallel()
	r := newTestRetriever(t)

	_, err := r.Search(context.Background(), "", 3)
	assert.Error(t, err)

	_, err = r.Search(context.Background(), "q", 0)
	assert.Error(t, err)
}

func TestRebuild_SwapsWholeIndex(t *testing.T) {
	t.Parallel()
	r := newTestRetriever(t)

	next := []knowledge.Document{
		{ID: "only_doc", Title: "Only", Content: "replacement corpus single document"},
	}
	require.NoError(t, r.Rebuild(context.Background(), next))

	docs, err := r.Search(context.Background(), "replacement corpus", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "only_doc", docs[0].ID)
}

func TestRebuild_RejectsEmptyID(t *testing.T) {
	t.Parallel()
	r := newTestRetriever(t)

	err := r.Rebuild(context.Background(), []knowledge.Document{{ID: "", Content: "x"}})
	assert.Error(t, err)
}

func TestTool_Invoke(t *testing.T) {
	t.Parallel()
	tool := knowledge.NewTool(newTestRetriever(t), 0)

	payload, err := tool.Invoke(context.Background(), map[string]any{"query": "phishing email"})
	require.NoError(t, err)

	sp, ok := payload.(knowledge.SearchPayload)
	require.True(t, ok)
	assert.Equal(t, "phishing email", sp.Query)
	assert.Equal(t, len(sp.Results), sp.ResultsFound)
	require.NotEmpty(t, sp.Results)
	assert.Equal(t, "phishing_policy", sp.Results[0].ID)
}

func TestTool_Invoke_AcceptsAliasAndTopK(t *testing.T) {
	t.Parallel()
	tool := knowledge.NewTool(newTestRetriever(t), 0)

	// "q" alias and JSON-decoded float64 top_k.
	payload, err := tool.Invoke(context.Background(), map[string]any{"q": "password", "top_k": float64(1)})
	require.NoError(t, err)
	sp := payload.(knowledge.SearchPayload)
	assert.Equal(t, 1, sp.ResultsFound)
}

func TestTool_Invoke_ConfiguredTopK(t *testing.T) {
	t.Parallel()
	r := newTestRetriever(t)

	// A plan omitting top_k gets the configured count, not the package
	// default.
	tool := knowledge.NewTool(r, 2)
	payload, err := tool.Invoke(context.Background(), map[string]any{"query": "password"})
	require.NoError(t, err)
	sp := payload.(knowledge.SearchPayload)
	assert.Equal(t, 2, sp.ResultsFound)

	// An explicit plan top_k still wins over the configured value.
	payload, err = tool.Invoke(context.Background(), map[string]any{"query": "password", "top_k": float64(1)})
	require.NoError(t, err)
	sp = payload.(knowledge.SearchPayload)
	assert.Equal(t, 1, sp.ResultsFound)

	// Non-positive configuration falls back to the default.
	tool = knowledge.NewTool(r, -1)
	payload, err = tool.Invoke(context.Background(), map[string]any{"query": "password"})
	require.NoError(t, err)
	sp = payload.(knowledge.SearchPayload)
	assert.Equal(t, knowledge.DefaultTopK, sp.ResultsFound)
}

func TestTool_Invoke_MissingQuery(t *testing.T) {
	t.Parallel()
	tool := knowledge.NewTool(newTestRetriever(t), 0)

	_, err := tool.Invoke(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestDefaultCorpus_WellFormed(t *testing.T) {
	t.Parallel()

	docs := knowledge.DefaultCorpus()
	require.NotEmpty(t, docs)
	seen := make(map[string]bool)
	for _, d := range docs {
		assert.NotEmpty(t, d.ID)
		assert.NotEmpty(t, d.Title)
		assert.NotEmpty(t, d.Content)
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
}

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	t.Parallel()
	e := knowledge.NewHashEmbedder(64)

	a, err := e.Embed(context.Background(), "some security text")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "some security text")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}
