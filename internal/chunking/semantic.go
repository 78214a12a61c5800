// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunking

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/northbound/hiverag/internal/llm"
)

// SemanticLLM is the narrow llm.Client surface the semantic splitter
// needs, so this package doesn't have to import the whole llm.Config
// wiring story.
type SemanticLLM interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error)
}

var semanticBoundarySchema = &llm.ResponseSchema{
	Name: "semantic_boundaries",
	Schema: []byte(`{
		"type": "object",
		"properties": {
			"boundaries": {
				"type": "array",
				"items": {"type": "integer"}
			}
		},
		"required": ["boundaries"]
	}`),
}

// splitSemantic asks the LLM to mark topic-boundary offsets in text, then
// slices text at those offsets. Falling back to recursive splitting on any
// LLM or schema failure keeps ingestion from stalling on a flaky model
// call (§4.6 — semantic chunking degrades gracefully).
func splitSemantic(ctx context.Context, client SemanticLLM, text string, plan Plan) ([]Piece, error) {
	prompt := buildBoundaryPrompt(text, plan.Size)

	result, err := client.Generate(ctx, llm.GenerateRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You split documents at natural topic boundaries for retrieval chunking. Respond with JSON only."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Schema: semanticBoundarySchema,
	})
	if err != nil || result.Structured == nil {
		return splitRecursive(text, plan)
	}

	boundaries, ok := extractBoundaries(result.Structured)
	if !ok || len(boundaries) == 0 {
		return splitRecursive(text, plan)
	}

	return sliceAtBoundaries(text, boundaries), nil
}

func buildBoundaryPrompt(text string, targetSize int) string {
	if targetSize <= 0 {
		targetSize = 1000
	}
	b, _ := json.Marshal(map[string]interface{}{
		"target_chunk_size": targetSize,
		"text":              text,
	})
	return string(b)
}

func extractBoundaries(structured map[string]interface{}) ([]int, bool) {
	raw, ok := structured["boundaries"].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			out = append(out, int(n))
		case int:
			out = append(out, n)
		}
	}
	return out, len(out) > 0
}

func sliceAtBoundaries(text string, boundaries []int) []Piece {
	sort.Ints(boundaries)
	valid := make([]int, 0, len(boundaries)+1)
	valid = append(valid, 0)
	for _, b := range boundaries {
		if b > 0 && b < len(text) {
			valid = append(valid, b)
		}
	}
	valid = append(valid, len(text))

	var chunks []string
	for i := 0; i < len(valid)-1; i++ {
		if valid[i] >= valid[i+1] {
			continue
		}
		chunk := text[valid[i]:valid[i+1]]
		if trimmed := trimChunk(chunk); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	if len(chunks) == 0 {
		return []Piece{{Index: 0, Text: text}}
	}
	return dense(chunks)
}

func trimChunk(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
