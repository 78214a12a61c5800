// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package planner implements the Query Analyzer & Planner (§4.9): it
// classifies a query's complexity, decides which tools it needs, and emits
// an ordered plan of steps for the executor to run. Grounded in shape on
// the teacher's schema-constrained LLM call pattern (internal/embeddings'
// Generate-with-schema usage) and on the staged-pipeline structure of
// rag-agentic-pipeline.go's analysis stage, adapted to this engine's
// index-based plan representation (§9): a Plan owns its Steps by value and
// a Step never references its owning Plan back, which keeps the structure
// acyclic and trivially serializable for the audit trail.
package planner

import (
	"encoding/json"
	"context"
	"strings"

	"github.com/northbound/hiverag/internal/errs"
	"github.com/northbound/hiverag/internal/llm"
)

// Complexity buckets a query's estimated difficulty.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

var analysisSchema = &llm.ResponseSchema{
	Name: "query_analysis",
	Schema: []byte(`{
		"type": "object",
		"properties": {
			"complexity": {"type": "string", "enum": ["simple", "complex"]},
			"requires_tools": {"type": "array", "items": {"type": "string"}},
			"sub_queries": {"type": "array", "items": {"type": "string"}},
			"reasoning": {"type": "string"}
		},
		"required": ["complexity"]
	}`),
}

// Analysis is the Query Analyzer's verdict for one incoming query.
type Analysis struct {
	Complexity    Complexity
	RequiresTools []string
	SubQueries    []string
	Reasoning     string
}

// StepKind names what a Step invokes: either a registered tool, or the
// terminal synthesis stage.
type StepKind string

const (
	StepTool      StepKind = "tool"
	StepSynthesize StepKind = "synthesize"
)

// Step is one unit of plan execution. Input may contain the literal
// placeholder value "$step:<n>" for a string field, meaning "substitute
// step n's output here" — the executor resolves these by index, never by
// pointer, so a plan can be marshaled, replayed, or audited without cycles.
type Step struct {
	Index       int
	Kind        StepKind
	Tool        string
	Input       map[string]interface{}
	UseHistory  bool // only meaningful for StepSynthesize
}

// QueryPlan is the ordered, acyclic sequence of steps the executor runs for
// one query.
type QueryPlan struct {
	Query    string
	Analysis Analysis
	Steps    []Step
}

// Planner turns a query into an Analysis and a QueryPlan.
type Planner struct {
	client llm.Client
}

func New(client llm.Client) *Planner {
	return &Planner{client: client}
}

// Analyze classifies the query. A schema-parse failure degrades to a
// single-step simple plan rather than blocking the query (consistent with
// every other advisory judge in this engine).
func (p *Planner) Analyze(ctx context.Context, query, history string) Analysis {
	if p.client == nil {
		return Analysis{Complexity: ComplexitySimple, RequiresTools: []string{"rag"}}
	}

	result, err := p.client.Generate(ctx, llm.GenerateRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Classify the user's query. Decide whether it is simple (answerable from one retrieval pass) or complex (needs multiple sub-questions or tools). Respond with JSON only."},
			{Role: llm.RoleUser, Content: buildAnalysisPrompt(query, history)},
		},
		Schema: analysisSchema,
	})
	if err != nil || result.Structured == nil {
		return Analysis{Complexity: ComplexitySimple, RequiresTools: []string{"rag"}}
	}
	return parseAnalysis(result.Structured)
}

func buildAnalysisPrompt(query, history string) string {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(query)
	if history != "" {
		b.WriteString("\n\nConversation history:\n")
		b.WriteString(history)
	}
	return b.String()
}

func parseAnalysis(structured map[string]interface{}) Analysis {
	complexity, _ := structured["complexity"].(string)
	reasoning, _ := structured["reasoning"].(string)
	a := Analysis{
		Complexity:    Complexity(complexity),
		Reasoning:     reasoning,
		RequiresTools: toStringSlice(structured["requires_tools"]),
		SubQueries:    toStringSlice(structured["sub_queries"]),
	}
	if a.Complexity != ComplexityComplex {
		a.Complexity = ComplexitySimple
	}
	if len(a.RequiresTools) == 0 {
		a.RequiresTools = []string{"rag"}
	}
	return a
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

// Plan builds the ordered step sequence for query given its Analysis.
// allowedTools is the caller's permitted tool set; any tool the analysis
// requested but the caller may not use is dropped with a note appended to
// the plan's reasoning trail rather than failing the whole query.
func (p *Planner) Plan(ctx context.Context, query string, analysis Analysis, allowedTools map[string]bool) (*QueryPlan, error) {
	if query == "" {
		return nil, errs.Validationf("planner", "query", "query is required")
	}

	var dropped []string
	tools := make([]string, 0, len(analysis.RequiresTools))
	for _, t := range analysis.RequiresTools {
		if allowedTools == nil || allowedTools[t] {
			tools = append(tools, t)
		} else {
			dropped = append(dropped, t)
		}
	}
	if len(tools) == 0 {
		tools = []string{"rag"}
	}
	if len(dropped) > 0 {
		analysis.Reasoning = strings.TrimSpace(analysis.Reasoning + " (forbidden tools dropped: " + strings.Join(dropped, ", ") + ")")
	}

	plan := &QueryPlan{Query: query, Analysis: analysis}

	if analysis.Complexity == ComplexitySimple {
		plan.Steps = append(plan.Steps, Step{
			Index: 0, Kind: StepTool, Tool: "rag",
			Input: map[string]interface{}{"query": query},
		})
		plan.Steps = append(plan.Steps, Step{
			Index: 1, Kind: StepSynthesize, UseHistory: true,
		})
		return plan, nil
	}

	idx := 0
	for _, tool := range tools {
		plan.Steps = append(plan.Steps, Step{
			Index: idx, Kind: StepTool, Tool: tool,
			Input: map[string]interface{}{"query": query},
		})
		idx++
	}
	subQueries := analysis.SubQueries
	if len(subQueries) == 0 {
		subQueries = []string{query}
	}
	for _, sq := range subQueries {
		plan.Steps = append(plan.Steps, Step{
			Index: idx, Kind: StepTool, Tool: "rag",
			Input: map[string]interface{}{"query": sq},
		})
		idx++
	}
	plan.Steps = append(plan.Steps, Step{
		Index: idx, Kind: StepSynthesize, UseHistory: true,
	})
	return plan, nil
}

// MarshalTrace renders a plan to JSON for the audit trail.
func MarshalTrace(plan *QueryPlan) ([]byte, error) {
	return json.Marshal(plan)
}
