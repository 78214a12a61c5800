// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
)

// mockClient returns deterministic, schema-shaped text for tests and
// offline development, the same role the teacher's MockEmbedder plays for
// vectors.
type mockClient struct{}

func newMockClient() *mockClient { return &mockClient{} }

func (c *mockClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.Schema == nil {
		return &GenerateResult{Raw: "mock response"}, nil
	}

	// Produce a minimal object satisfying common required-field shapes
	// without depending on a real model: every schema-producing caller in
	// this engine names a handful of well-known fields.
	stub := map[string]interface{}{
		"strategy":        "recursive",
		"reasoning":       "mock reasoning",
		"relevant":        true,
		"confidence":      0.5,
		"answer":          "mock answer",
		"quality_score":   7.0,
		"needs_refinement": false,
		"tool":            "",
	}
	raw, err := json.Marshal(stub)
	if err != nil {
		return &GenerateResult{Raw: "mock response"}, nil
	}
	return &GenerateResult{Raw: string(raw), Structured: stub, FallbackStage: "schema"}, nil
}

// mockEmbedder generates deterministic mock embeddings based on a text
// hash, identical in spirit to the teacher's MockEmbedder.
type mockEmbedder struct {
	dim int
}

func newMockEmbedder(dim int) *mockEmbedder {
	return &mockEmbedder{dim: dim}
}

func (e *mockEmbedder) Dimension() int { return e.dim }

func (e *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, e.dim)
	for i := 0; i < e.dim; i++ {
		embedding[i] = float32(math.Sin(float64(seed*uint32(i+1)) * 0.1))
	}

	var sum float32
	for _, v := range embedding {
		sum += v * v
	}
	norm := float32(math.Sqrt(float64(sum)))
	if norm > 0 {
		for i := range embedding {
			embedding[i] /= norm
		}
	}
	return embedding, nil
}

func (e *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
