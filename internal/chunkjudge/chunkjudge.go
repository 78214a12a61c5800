// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package chunkjudge implements the Chunking Judge (§4.7): given a
// document's metadata and a representative sample of its text, it asks
// the LLM to recommend a chunking strategy and parameters. Deterministic
// file-type overrides take precedence over the judge so cost stays
// predictable for well-known formats; the judge's advice is used only
// when no override applies, and any judge failure falls back to a
// fixed default.
package chunkjudge

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/northbound/hiverag/internal/chunking"
	"github.com/northbound/hiverag/internal/llm"
)

// defaultPlan is used when the judge is disabled or its output cannot be
// parsed into a usable plan (§4.7).
var defaultPlan = chunking.Plan{Strategy: chunking.StrategyRecursive, Size: 500, Overlap: 50}

// fileTypeOverrides maps a lowercase extension to a fixed plan that
// bypasses the judge entirely. CSV and plain text both benefit from
// larger, structure-agnostic windows; the judge would otherwise spend a
// call re-deriving the same conclusion every time.
var fileTypeOverrides = map[string]chunking.Plan{
	".csv": {Strategy: chunking.StrategyRecursive, Size: 2000, Overlap: 100},
	".txt": {Strategy: chunking.StrategyRecursive, Size: 1500, Overlap: 150},
}

var judgeSchema = &llm.ResponseSchema{
	Name: "chunking_recommendation",
	Schema: []byte(`{
		"type": "object",
		"properties": {
			"strategy": {"type": "string", "enum": ["recursive", "token", "markdown", "semantic"]},
			"chunk_size": {"type": "integer"},
			"chunk_overlap": {"type": "integer"},
			"justification": {"type": "string"}
		},
		"required": ["strategy", "chunk_size", "chunk_overlap"]
	}`),
}

// Recommendation is the Chunking Judge's verdict, kept alongside the
// chosen Plan so the document record can store why a strategy was picked.
type Recommendation struct {
	Plan          chunking.Plan
	Justification string
	FromOverride  bool
}

// Judge wraps an llm.Client to produce chunking recommendations.
type Judge struct {
	client  llm.Client
	enabled bool
}

func New(client llm.Client, enabled bool) *Judge {
	return &Judge{client: client, enabled: enabled}
}

// Recommend resolves a chunking Plan for a document. filename decides
// whether a deterministic override applies; sample is the ≤5000-char
// beginning/middle/end excerpt the judge reasons over when consulted.
func (j *Judge) Recommend(ctx context.Context, filename string, sample string) Recommendation {
	ext := strings.ToLower(filepath.Ext(filename))
	if plan, ok := fileTypeOverrides[ext]; ok {
		return Recommendation{Plan: plan, Justification: "file-type override for " + ext, FromOverride: true}
	}

	if !j.enabled || j.client == nil {
		return Recommendation{Plan: defaultPlan, Justification: "judge disabled, using default"}
	}

	result, err := j.client.Generate(ctx, llm.GenerateRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You recommend a document chunking strategy for retrieval. Respond with JSON only."},
			{Role: llm.RoleUser, Content: buildPrompt(filename, sample)},
		},
		Schema: judgeSchema,
	})
	if err != nil || result.Structured == nil {
		return Recommendation{Plan: defaultPlan, Justification: "judge call failed, using default"}
	}

	plan, justification, ok := parsePlan(result.Structured)
	if !ok {
		return Recommendation{Plan: defaultPlan, Justification: "judge output unparseable, using default"}
	}
	return Recommendation{Plan: plan, Justification: justification}
}

// Sample builds the ≤5000-char beginning/middle/end excerpt the judge
// reasons over, avoiding the cost of sending a full large document.
func Sample(text string) string {
	const maxTotal = 5000
	const sep = "\n...\n"
	const each = (maxTotal - 2*len(sep)) / 3

	if len(text) <= maxTotal {
		return text
	}

	head := text[:each]
	mid := text[len(text)/2-each/2 : len(text)/2+each/2]
	tail := text[len(text)-each:]
	return head + sep + mid + sep + tail
}

func buildPrompt(filename, sample string) string {
	var b strings.Builder
	b.WriteString("Document filename: ")
	b.WriteString(filename)
	b.WriteString("\n\nSample text:\n")
	b.WriteString(sample)
	return b.String()
}

func parsePlan(structured map[string]interface{}) (chunking.Plan, string, bool) {
	strategyRaw, _ := structured["strategy"].(string)
	strategy := chunking.Strategy(strategyRaw)
	switch strategy {
	case chunking.StrategyRecursive, chunking.StrategyToken, chunking.StrategyHeaderStructured, chunking.StrategySemantic:
	default:
		return chunking.Plan{}, "", false
	}

	size := toInt(structured["chunk_size"])
	overlap := toInt(structured["chunk_overlap"])
	if size <= 0 {
		size = defaultPlan.Size
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultPlan.Overlap
	}

	justification, _ := structured["justification"].(string)
	return chunking.Plan{Strategy: strategy, Size: size, Overlap: overlap}, justification, true
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
