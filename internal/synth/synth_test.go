// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/hiverag/internal/llm"
)

// scriptedClient replays a fixed sequence of GenerateResults, one per call,
// so a test can drive the synthesize/evaluate/refine loop deterministically.
type scriptedClient struct {
	results []*llm.GenerateResult
	calls   int
}

func (s *scriptedClient) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	if s.calls >= len(s.results) {
		return s.results[len(s.results)-1], nil
	}
	r := s.results[s.calls]
	s.calls++
	return r, nil
}

func passingEval() map[string]interface{} {
	return map[string]interface{}{
		"accuracy": 9.0, "completeness": 9.0, "relevance": 9.0, "clarity": 9.0, "coherence": 9.0, "hallucination": 9.0,
	}
}

func failingEval() map[string]interface{} {
	return map[string]interface{}{
		"accuracy": 2.0, "completeness": 2.0, "relevance": 2.0, "clarity": 2.0, "coherence": 2.0, "hallucination": 2.0,
		"hallucinated_spans": []interface{}{"claim X"},
	}
}

func TestEvaluation_Overall(t *testing.T) {
	e := Evaluation{Accuracy: 10, Completeness: 8, Relevance: 6, Clarity: 4, Coherence: 2}
	assert.Equal(t, 6.0, e.Overall())
}

func TestEvaluation_Passes(t *testing.T) {
	e := Evaluation{Accuracy: 9, Completeness: 9, Relevance: 9, Clarity: 9, Coherence: 9, Hallucination: 9}
	assert.True(t, e.Passes(8, 8))
	assert.False(t, e.Passes(9.5, 8))
	assert.False(t, e.Passes(8, 9.5))
}

func TestPipeline_Compose_NilClientDegradesGracefully(t *testing.T) {
	p := NewPipeline(nil, true, 1, 8, 8)
	answer, eval, err := p.Compose(context.Background(), "q", nil, "")
	require.NoError(t, err)
	assert.True(t, answer.FellBack)
	assert.Equal(t, 5.0, eval.Overall())
}

func TestPipeline_Compose_PassingAnswerSkipsRefinement(t *testing.T) {
	client := &scriptedClient{results: []*llm.GenerateResult{
		{Structured: map[string]interface{}{"text": "good answer"}},
		{Structured: passingEval()},
	}}
	p := NewPipeline(client, true, 2, 8, 8)
	answer, eval, err := p.Compose(context.Background(), "q", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "good answer", answer.Text)
	assert.True(t, eval.Passes(8, 8))
	assert.Equal(t, 2, client.calls) // synthesize + evaluate only, no refinement call
}

func TestPipeline_Compose_FailingAnswerTriggersOneRefinementPass(t *testing.T) {
	client := &scriptedClient{results: []*llm.GenerateResult{
		{Structured: map[string]interface{}{"text": "rough draft"}},
		{Structured: failingEval()},
		{Structured: map[string]interface{}{"text": "refined answer"}},
		{Structured: passingEval()},
	}}
	p := NewPipeline(client, true, 1, 8, 8)
	answer, eval, err := p.Compose(context.Background(), "q", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "refined answer", answer.Text)
	assert.True(t, eval.Passes(8, 8))
	assert.Equal(t, 4, client.calls)
}

func TestPipeline_Compose_RefinementDisabledReturnsFirstDraftEvenIfFailing(t *testing.T) {
	client := &scriptedClient{results: []*llm.GenerateResult{
		{Structured: map[string]interface{}{"text": "rough draft"}},
		{Structured: failingEval()},
	}}
	p := NewPipeline(client, false, 2, 8, 8)
	answer, eval, err := p.Compose(context.Background(), "q", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "rough draft", answer.Text)
	assert.False(t, eval.Passes(8, 8))
	assert.Equal(t, 2, client.calls)
}

func TestPipeline_Compose_RefinementCapsAtMaxPasses(t *testing.T) {
	client := &scriptedClient{results: []*llm.GenerateResult{
		{Structured: map[string]interface{}{"text": "draft 0"}},
		{Structured: failingEval()},
		{Structured: map[string]interface{}{"text": "draft 1"}},
		{Structured: failingEval()},
		{Structured: map[string]interface{}{"text": "draft 2"}},
		{Structured: failingEval()},
	}}
	p := NewPipeline(client, true, 2, 8, 8)
	answer, eval, err := p.Compose(context.Background(), "q", nil, "")
	require.NoError(t, err)
	// initial synthesize+evaluate, then exactly 2 refinement passes (4 more calls) = 6 total
	assert.Equal(t, "draft 2", answer.Text)
	assert.False(t, eval.Passes(8, 8))
	assert.Equal(t, 6, client.calls)
}
