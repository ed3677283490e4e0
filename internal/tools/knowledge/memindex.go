// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package knowledge

import (
	"context"
	"math"
	"slices"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// memIndex is an exact, exhaustive in-memory index. Every query compares
// against every corpus vector; at this corpus scale an approximate index
// buys nothing. Vectors are unit-normalized once at build time so the
// per-query distance is a single dot product.
type memIndex struct {
	ids     []string
	vectors [][]float32
}

// NewMemIndex builds an in-memory index from corpus vectors. The ids are
// stored sorted so equal-distance results come back in id order without
// any per-query bookkeeping.
func NewMemIndex(_ context.Context, vectors map[string][]float32) (Index, error) {
	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	normed := make([][]float32, len(ids))
	for i, id := range ids {
		vec := unitNormalize(vectors[id])
		if vec == nil {
			return nil, sentraerr.Errorf(sentraerr.CodeKnowledgeIndexFailure, "zero or empty vector for document %s", id)
		}
		normed[i] = vec
	}

	return &memIndex{ids: ids, vectors: normed}, nil
}

func (m *memIndex) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	q := unitNormalize(query)
	if q == nil {
		return nil, sentraerr.New(sentraerr.CodeKnowledgeQueryInvalid, "zero or empty query vector")
	}

	hits := make([]Hit, 0, len(m.ids))
	for i, id := range m.ids {
		if len(m.vectors[i]) != len(q) {
			return nil, sentraerr.Errorf(sentraerr.CodeKnowledgeQueryInvalid,
				"query dimension %d does not match index dimension %d", len(q), len(m.vectors[i]))
		}
		hits = append(hits, Hit{DocID: id, Score: cosineDistance(q, m.vectors[i])})
	}

	// Stable sort over id-sorted input keeps ties in id order.
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		default:
			return 0
		}
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memIndex) Close() error { return nil }

// cosineDistance is 1 - dot(a, b) for unit vectors.
func cosineDistance(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot
}

// unitNormalize returns a unit-length copy of v, or nil if v is empty or
// has zero magnitude.
func unitNormalize(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	mag := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
