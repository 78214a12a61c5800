// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package retrievaljudge implements the Retrieval Judge (§4.10): given the
// original query, the chunks retrieved so far, and prior chat history, it
// decides whether retrieval should continue with a refined query, and may
// filter or re-rank the chunk set. It is advisory the same way the
// Chunking Judge is — a schema-parse failure degrades to "stop, keep what
// we have" rather than blocking the query.
package retrievaljudge

import (
	"context"
	"strings"

	"github.com/northbound/hiverag/internal/llm"
)

var judgeSchema = &llm.ResponseSchema{
	Name: "retrieval_verdict",
	Schema: []byte(`{
		"type": "object",
		"properties": {
			"request_more": {"type": "boolean"},
			"refined_query": {"type": "string"},
			"relevant_chunk_ids": {"type": "array", "items": {"type": "string"}},
			"re_rank_chunk_ids": {"type": "array", "items": {"type": "string"}},
			"reasoning": {"type": "string"}
		},
		"required": ["request_more"]
	}`),
}

// ChunkSummary is the narrow slice of a retrieved chunk the judge reasons
// over — no vectors, no permission metadata, just what it needs to judge
// relevance.
type ChunkSummary struct {
	ChunkID string
	Excerpt string
}

// Verdict is the Retrieval Judge's decision for one iteration of the
// retrieval loop in §4.10.
type Verdict struct {
	RequestMore      bool
	RefinedQuery     string
	RelevantChunkIDs []string // nil means "no filter, keep everything"
	ReRankChunkIDs   []string // nil means "keep retrieval order"
	Reasoning        string
	FellBack         bool // true when the LLM call or parse failed
}

// Judge wraps an llm.Client to evaluate one retrieval iteration.
type Judge struct {
	client  llm.Client
	enabled bool
}

func New(client llm.Client, enabled bool) *Judge {
	return &Judge{client: client, enabled: enabled}
}

// Evaluate judges one retrieval iteration. history is the prior chat
// turns, already rendered to plain text by the caller; it may be empty.
func (j *Judge) Evaluate(ctx context.Context, originalQuery string, chunks []ChunkSummary, history string) Verdict {
	if !j.enabled || j.client == nil || len(chunks) == 0 {
		return Verdict{RequestMore: false, FellBack: true, Reasoning: "judge disabled or no chunks to evaluate"}
	}

	result, err := j.client.Generate(ctx, llm.GenerateRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You evaluate whether retrieved passages answer a user's question. Respond with JSON only."},
			{Role: llm.RoleUser, Content: buildPrompt(originalQuery, chunks, history)},
		},
		Schema: judgeSchema,
	})
	if err != nil || result.Structured == nil {
		return Verdict{RequestMore: false, FellBack: true, Reasoning: "judge call failed, stopping with current chunks"}
	}

	verdict, ok := parseVerdict(result.Structured)
	if !ok {
		return Verdict{RequestMore: false, FellBack: true, Reasoning: "judge output unparseable, stopping with current chunks"}
	}
	// Requesting more with no refined query has nowhere to go: the loop
	// would re-issue the same search and never converge (§8 boundary
	// behavior), so treat it as a stop instead.
	if verdict.RequestMore && strings.TrimSpace(verdict.RefinedQuery) == "" {
		verdict.RequestMore = false
	}
	return verdict
}

func buildPrompt(query string, chunks []ChunkSummary, history string) string {
	var b strings.Builder
	b.WriteString("Original query: ")
	b.WriteString(query)
	if history != "" {
		b.WriteString("\n\nConversation history:\n")
		b.WriteString(history)
	}
	b.WriteString("\n\nRetrieved chunks:\n")
	for _, c := range chunks {
		b.WriteString("- [")
		b.WriteString(c.ChunkID)
		b.WriteString("] ")
		b.WriteString(c.Excerpt)
		b.WriteString("\n")
	}
	return b.String()
}

func parseVerdict(structured map[string]interface{}) (Verdict, bool) {
	requestMore, _ := structured["request_more"].(bool)
	refined, _ := structured["refined_query"].(string)
	reasoning, _ := structured["reasoning"].(string)

	v := Verdict{
		RequestMore:      requestMore,
		RefinedQuery:     refined,
		Reasoning:        reasoning,
		RelevantChunkIDs: toStringSlice(structured["relevant_chunk_ids"]),
		ReRankChunkIDs:   toStringSlice(structured["re_rank_chunk_ids"]),
	}
	return v, true
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
