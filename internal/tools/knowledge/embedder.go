// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
)

// DefaultEmbeddingModel is the OpenAI embedding model used when none is
// configured.
const DefaultEmbeddingModel = openaisdk.EmbeddingModelTextEmbedding3Small

// OpenAIEmbedder produces embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     openaisdk.Client
	model      openaisdk.EmbeddingModel
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for the given model and output
// dimensionality. baseURL and model are optional.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, sentraerr.New(sentraerr.CodeReasonerNotConfigured, "openai embedder requires an api key")
	}
	embedModel := openaisdk.EmbeddingModel(model)
	if embedModel == "" {
		embedModel = DefaultEmbeddingModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		client:     openaisdk.NewClient(opts...),
		model:      embedModel,
		dimensions: dimensions,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input:      openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model:      e.model,
		Dimensions: openaisdk.Int(int64(e.dimensions)),
	})
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeKnowledgeEmbedFailure, "requesting embedding")
	}
	if len(resp.Data) == 0 {
		return nil, sentraerr.New(sentraerr.CodeKnowledgeEmbedFailure, "embedding response contained no vectors")
	}

	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// HashEmbedder is a deterministic local embedder: each token is hashed
// into a bucket and the bucket counts are L2-normalized. It has no
// semantic power beyond term overlap, but it is stable across runs and
// needs no network, which makes it the default for the in-memory
// backend and for tests.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a HashEmbedder with the given dimensionality.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		// fnv write never fails
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
