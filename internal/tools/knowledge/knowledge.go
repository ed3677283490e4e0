// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

// Package knowledge implements similarity search over an indexed security
// policy corpus. Scores are cosine distances: lower is more similar, 0.0
// is an exact match. Ties break by document id ascending so repeated
// searches over the same corpus are deterministic.
package knowledge

import (
	"context"
	"sync/atomic"

	"github.com/sentra-dev/sentra/internal/tools"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// Document is one indexed knowledge-base document.
type Document struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	// Score is the cosine distance to the query (lower = more similar).
	// Populated only on search results.
	Score float64 `json:"score"`
}

// Embedder maps text into the vector space the index was built in.
// Embedding generation is an external collaborator.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is one raw index match before document hydration.
type Hit struct {
	DocID string
	Score float64
}

// Index answers k-nearest-neighbor queries over the corpus vectors.
// Implementations must return hits ordered by ascending score with ties
// broken by document id ascending.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Close() error
}

// snapshot pairs an index with the documents it was built from. The pair
// is immutable; a rebuild produces a fresh snapshot.
type snapshot struct {
	index Index
	docs  map[string]Document
}

// Builder constructs an Index from corpus vectors.
type Builder func(ctx context.Context, vectors map[string][]float32) (Index, error)

// Retriever owns the process-wide document index. Reads are lock-free;
// Rebuild swaps the whole snapshot in one atomic store so no reader ever
// observes a half-built index.
type Retriever struct {
	embedder Embedder
	build    Builder
	snap     atomic.Pointer[snapshot]
}

// NewRetriever embeds and indexes the given document collection once.
// The resulting index is immutable for the process lifetime unless
// Rebuild is called.
func NewRetriever(ctx context.Context, embedder Embedder, build Builder, docs []Document) (*Retriever, error) {
	r := &Retriever{embedder: embedder, build: build}
	if err := r.Rebuild(ctx, docs); err != nil {
		return nil, err
	}
	return r, nil
}

// Rebuild replaces the entire index from a new document collection. The
// previous snapshot stays readable until the swap completes; there is no
// incremental update path.
func (r *Retriever) Rebuild(ctx context.Context, docs []Document) error {
	vectors := make(map[string][]float32, len(docs))
	byID := make(map[string]Document, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return sentraerr.New(sentraerr.CodeKnowledgeIndexFailure, "document with empty id in corpus")
		}
		vec, err := r.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return sentraerr.Wrapf(err, sentraerr.CodeKnowledgeEmbedFailure, "embedding document %s", doc.ID)
		}
		vectors[doc.ID] = vec
		byID[doc.ID] = doc
	}

	index, err := r.build(ctx, vectors)
	if err != nil {
		return sentraerr.Wrap(err, sentraerr.CodeKnowledgeIndexFailure, "building index")
	}

	old := r.snap.Swap(&snapshot{index: index, docs: byID})
	if old != nil {
		_ = old.index.Close()
	}
	return nil
}

// Search embeds the query and returns the k most similar documents,
// ordered by ascending cosine distance, ties by document id ascending.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if query == "" {
		return nil, sentraerr.New(sentraerr.CodeKnowledgeQueryInvalid, "query must not be empty")
	}
	if k <= 0 {
		return nil, sentraerr.Errorf(sentraerr.CodeKnowledgeQueryInvalid, "k must be positive, got %d", k)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeKnowledgeEmbedFailure, "embedding query")
	}

	snap := r.snap.Load()
	hits, err := snap.index.Search(ctx, vec, k)
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeKnowledgeIndexFailure, "searching index")
	}

	results := make([]Document, 0, len(hits))
	for _, hit := range hits {
		doc, ok := snap.docs[hit.DocID]
		if !ok {
			continue
		}
		doc.Score = hit.Score
		results = append(results, doc)
	}
	return results, nil
}

// Close releases the current index.
func (r *Retriever) Close() error {
	if snap := r.snap.Load(); snap != nil {
		return snap.index.Close()
	}
	return nil
}

// --- tool handler ---

// DefaultTopK is the result count used when neither the configuration
// nor the plan supplies top_k.
const DefaultTopK = 3

// Tool adapts the Retriever to the executor's tool registry.
type Tool struct {
	retriever *Retriever
	topK      int
}

// NewTool wraps a Retriever as the knowledge_base tool. topK is the
// result count used when a plan omits top_k; values <= 0 fall back to
// DefaultTopK.
func NewTool(r *Retriever, topK int) *Tool {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Tool{retriever: r, topK: topK}
}

func (t *Tool) ID() tools.ID { return tools.IDKnowledgeBase }

func (t *Tool) Describe() tools.CatalogEntry {
	return tools.CatalogEntry{
		ID:          tools.IDKnowledgeBase,
		Description: "Search security policies, playbooks, and incident response procedures. Params: query (string, required), top_k (int, optional).",
	}
}

// SearchPayload is the tool result payload for a knowledge search.
type SearchPayload struct {
	Query        string     `json:"query"`
	ResultsFound int        `json:"results_found"`
	Results      []Document `json:"results"`
}

func (t *Tool) Invoke(ctx context.Context, params map[string]any) (any, error) {
	query, _ := params["query"].(string)
	if query == "" {
		// The decision engine sometimes emits "q" instead of "query".
		query, _ = params["q"].(string)
	}
	if query == "" {
		return nil, sentraerr.New(sentraerr.CodeKnowledgeQueryInvalid, "query parameter required")
	}

	k := t.topK
	switch v := params["top_k"].(type) {
	case float64:
		if v > 0 {
			k = int(v)
		}
	case int:
		if v > 0 {
			k = v
		}
	}

	docs, err := t.retriever.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	return SearchPayload{Query: query, ResultsFound: len(docs), Results: docs}, nil
}
