// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package synth implements the Synthesizer, Evaluator, and Refiner (§4.11):
// compose a structured answer from retrieved chunks, score it across six
// quality dimensions, and optionally run up to a configured number of
// rewrite passes constrained to the evaluator's own findings. Grounded on the teacher's
// schema-constrained Generate call (internal/embeddings) and the
// evaluate-then-refine staging of rag-agentic-pipeline.go's synthesis
// phase.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/northbound/hiverag/internal/llm"
)

var synthesisSchema = &llm.ResponseSchema{
	Name: "synthesized_answer",
	Schema: []byte(`{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"code_blocks": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["text"]
	}`),
}

var evaluationSchema = &llm.ResponseSchema{
	Name: "answer_evaluation",
	Schema: []byte(`{
		"type": "object",
		"properties": {
			"accuracy": {"type": "number"},
			"completeness": {"type": "number"},
			"relevance": {"type": "number"},
			"clarity": {"type": "number"},
			"coherence": {"type": "number"},
			"hallucination": {"type": "number"},
			"hallucinated_spans": {"type": "array", "items": {"type": "string"}},
			"suggestions": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["accuracy", "completeness", "relevance", "clarity", "coherence", "hallucination"]
	}`),
}

// Answer is the Synthesizer's structured output. CodeBlocks are referenced
// from Text via "{CODE_BLOCK_n}" placeholders so a renderer can treat code
// as a distinct, independently-highlightable span.
type Answer struct {
	Text       string
	CodeBlocks []string
	FellBack   bool // true if schema parsing failed and Text carries raw output
}

// Evaluation is the Evaluator's six-dimension score for one Answer.
type Evaluation struct {
	Accuracy          float64
	Completeness      float64
	Relevance         float64
	Clarity           float64
	Coherence         float64
	Hallucination     float64
	HallucinatedSpans []string
	Suggestions       []string
}

// Overall is the unweighted mean of the five non-hallucination dimensions.
func (e Evaluation) Overall() float64 {
	return (e.Accuracy + e.Completeness + e.Relevance + e.Clarity + e.Coherence) / 5
}

// Passes reports whether e clears both configured thresholds (§6
// response.quality_threshold / response.hallucination_threshold).
func (e Evaluation) Passes(qualityThreshold, hallucinationThreshold float64) bool {
	return e.Overall() >= qualityThreshold && e.Hallucination >= hallucinationThreshold
}

// Pipeline composes the Synthesizer, Evaluator, and bounded Refiner.
type Pipeline struct {
	client                 llm.Client
	refinementEnabled       bool
	maxRefinementPasses     int
	qualityThreshold        float64
	hallucinationThreshold  float64
}

func NewPipeline(client llm.Client, refinementEnabled bool, maxRefinementPasses int, qualityThreshold, hallucinationThreshold float64) *Pipeline {
	return &Pipeline{
		client:                 client,
		refinementEnabled:      refinementEnabled,
		maxRefinementPasses:    maxRefinementPasses,
		qualityThreshold:       qualityThreshold,
		hallucinationThreshold: hallucinationThreshold,
	}
}

// Excerpt is the minimal citation the Synthesizer composes over.
type Excerpt struct {
	ChunkID  string
	Filename string
	Content  string
}

// Compose produces an Answer for query from the supplied excerpts and
// optional conversation history, then runs it through Evaluate and, if it
// fails the configured thresholds and refinement is enabled, at most
// maxRefinementPasses rewrite passes. An answer that already passes is
// returned unchanged — refinement never runs on a passing answer (§8
// idempotence law).
func (p *Pipeline) Compose(ctx context.Context, query string, excerpts []Excerpt, history string) (Answer, Evaluation, error) {
	answer, err := p.synthesize(ctx, query, excerpts, history, nil)
	if err != nil {
		return Answer{}, Evaluation{}, err
	}

	eval := p.evaluate(ctx, query, answer, excerpts)
	if eval.Passes(p.qualityThreshold, p.hallucinationThreshold) || !p.refinementEnabled {
		return answer, eval, nil
	}

	for pass := 0; pass < p.maxRefinementPasses; pass++ {
		refined, err := p.synthesize(ctx, query, excerpts, history, &eval)
		if err != nil {
			break
		}
		answer = refined
		eval = p.evaluate(ctx, query, answer, excerpts)
		if eval.Passes(p.qualityThreshold, p.hallucinationThreshold) {
			break
		}
	}
	return answer, eval, nil
}

func (p *Pipeline) synthesize(ctx context.Context, query string, excerpts []Excerpt, history string, priorEval *Evaluation) (Answer, error) {
	if p.client == nil {
		return Answer{Text: "no language model configured", FellBack: true}, nil
	}

	result, err := p.client.Generate(ctx, llm.GenerateRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Compose an answer using only the supplied excerpts. Put any code in code_blocks and reference it from text with {CODE_BLOCK_n} placeholders. Respond with JSON only."},
			{Role: llm.RoleUser, Content: buildSynthesisPrompt(query, excerpts, history, priorEval)},
		},
		Schema: synthesisSchema,
	})
	if err != nil {
		return Answer{}, err
	}
	if result.Structured == nil {
		return Answer{Text: result.Raw, FellBack: true}, nil
	}

	text, _ := result.Structured["text"].(string)
	return Answer{Text: text, CodeBlocks: toStringSlice(result.Structured["code_blocks"])}, nil
}

func buildSynthesisPrompt(query string, excerpts []Excerpt, history string, priorEval *Evaluation) string {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(query)
	if history != "" {
		b.WriteString("\n\nConversation history:\n")
		b.WriteString(history)
	}
	b.WriteString("\n\nExcerpts:\n")
	for _, e := range excerpts {
		fmt.Fprintf(&b, "- [%s, %s]: %s\n", e.ChunkID, e.Filename, e.Content)
	}
	if priorEval != nil {
		b.WriteString("\n\nThe previous draft had these issues, fix only these:\n")
		for _, span := range priorEval.HallucinatedSpans {
			fmt.Fprintf(&b, "- unsupported claim: %s\n", span)
		}
		for _, s := range priorEval.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

func (p *Pipeline) evaluate(ctx context.Context, query string, answer Answer, excerpts []Excerpt) Evaluation {
	if p.client == nil {
		return Evaluation{Accuracy: 5, Completeness: 5, Relevance: 5, Clarity: 5, Coherence: 5, Hallucination: 5}
	}

	result, err := p.client.Generate(ctx, llm.GenerateRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Score the answer against the excerpts on a 1-10 scale for accuracy, completeness, relevance, clarity, coherence, and hallucination (10 = no hallucination). List any unsupported spans. Respond with JSON only."},
			{Role: llm.RoleUser, Content: buildEvalPrompt(query, answer, excerpts)},
		},
		Schema: evaluationSchema,
	})
	if err != nil || result.Structured == nil {
		// Can't score it: treat conservatively as failing, so a refinement
		// pass (if enabled) gets a chance rather than shipping unverified.
		return Evaluation{Accuracy: 1, Completeness: 1, Relevance: 1, Clarity: 1, Coherence: 1, Hallucination: 1}
	}
	return parseEvaluation(result.Structured)
}

func buildEvalPrompt(query string, answer Answer, excerpts []Excerpt) string {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:\n")
	b.WriteString(answer.Text)
	b.WriteString("\n\nExcerpts:\n")
	for _, e := range excerpts {
		fmt.Fprintf(&b, "- [%s]: %s\n", e.ChunkID, e.Content)
	}
	return b.String()
}

func parseEvaluation(structured map[string]interface{}) Evaluation {
	return Evaluation{
		Accuracy:          toFloat(structured["accuracy"]),
		Completeness:      toFloat(structured["completeness"]),
		Relevance:         toFloat(structured["relevance"]),
		Clarity:           toFloat(structured["clarity"]),
		Coherence:         toFloat(structured["coherence"]),
		Hallucination:     toFloat(structured["hallucination"]),
		HallucinatedSpans: toStringSlice(structured["hallucinated_spans"]),
		Suggestions:       toStringSlice(structured["suggestions"]),
	}
}

func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
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
