// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/hiverag/internal/planner"
	"github.com/northbound/hiverag/internal/tools"
)

type stubTool struct {
	name   string
	output tools.Output
	err    error
	lastIn tools.Input
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) InputSchema() []byte { return []byte(`{}`) }
func (s *stubTool) OutputSchema() []byte { return []byte(`{}`) }
func (s *stubTool) Execute(ctx context.Context, input tools.Input, ec tools.ExecContext) (tools.Output, error) {
	s.lastIn = input
	return s.output, s.err
}

func newTestRegistry(t *testing.T, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	r, err := tools.NewRegistry(ts...)
	require.NoError(t, err)
	return r
}

func TestExecutor_Run_SimplePlanEndsInSynthesize(t *testing.T) {
	rag := &stubTool{name: "rag", output: tools.Output{"chunks": "some chunks"}}
	registry := newTestRegistry(t, rag)

	var synthCalled bool
	synth := func(ctx context.Context, query string, steps []StepResult, history string) (tools.Output, error) {
		synthCalled = true
		require.Len(t, steps, 1)
		return tools.Output{"text": "final answer"}, nil
	}

	exec := New(registry, synth, time.Second)
	plan := &planner.QueryPlan{
		Query: "q",
		Steps: []planner.Step{
			{Index: 0, Kind: planner.StepTool, Tool: "rag", Input: map[string]interface{}{"query": "q"}},
			{Index: 1, Kind: planner.StepSynthesize, UseHistory: true},
		},
	}

	steps, out, err := exec.Run(context.Background(), plan, tools.ExecContext{UserID: "alice"}, time.Now().Add(time.Minute), "history")
	require.NoError(t, err)
	assert.True(t, synthCalled)
	assert.Equal(t, "final answer", out["text"])
	require.Len(t, steps, 2)
	assert.Equal(t, "rag", steps[0].Tool)
	assert.Equal(t, planner.StepSynthesize, steps[1].Kind)
}

func TestExecutor_Run_ToolErrorIsConfinedToStep(t *testing.T) {
	failing := &stubTool{name: "calculator", err: assert.AnError}
	rag := &stubTool{name: "rag", output: tools.Output{"chunks": "some chunks"}}
	registry := newTestRegistry(t, failing, rag)

	var synthCalled bool
	synth := func(ctx context.Context, query string, steps []StepResult, history string) (tools.Output, error) {
		synthCalled = true
		require.Len(t, steps, 2)
		assert.Error(t, steps[0].Err)
		assert.NoError(t, steps[1].Err)
		return tools.Output{"text": "answer, computation failed"}, nil
	}

	exec := New(registry, synth, time.Second)
	plan := &planner.QueryPlan{
		Query: "q",
		Steps: []planner.Step{
			{Index: 0, Kind: planner.StepTool, Tool: "calculator"},
			{Index: 1, Kind: planner.StepTool, Tool: "rag"},
			{Index: 2, Kind: planner.StepSynthesize},
		},
	}

	steps, out, err := exec.Run(context.Background(), plan, tools.ExecContext{}, time.Now().Add(time.Minute), "")
	require.NoError(t, err)
	assert.True(t, synthCalled)
	assert.Equal(t, "answer, computation failed", out["text"])
	require.Len(t, steps, 3)
	assert.Error(t, steps[0].Err)
}

func TestExecutor_Run_UnknownToolIsConfinedToStep(t *testing.T) {
	registry := newTestRegistry(t)
	var synthCalled bool
	synth := func(ctx context.Context, query string, steps []StepResult, history string) (tools.Output, error) {
		synthCalled = true
		require.Len(t, steps, 1)
		assert.Error(t, steps[0].Err)
		return tools.Output{}, nil
	}
	exec := New(registry, synth, time.Second)
	plan := &planner.QueryPlan{
		Steps: []planner.Step{
			{Index: 0, Kind: planner.StepTool, Tool: "missing"},
			{Index: 1, Kind: planner.StepSynthesize},
		},
	}
	_, _, err := exec.Run(context.Background(), plan, tools.ExecContext{}, time.Now().Add(time.Minute), "")
	require.NoError(t, err)
	assert.True(t, synthCalled)
}

func TestExecutor_Run_SynthesizeErrorFailsQuery(t *testing.T) {
	rag := &stubTool{name: "rag", output: tools.Output{}}
	registry := newTestRegistry(t, rag)
	synth := func(ctx context.Context, query string, steps []StepResult, history string) (tools.Output, error) {
		return nil, assert.AnError
	}
	exec := New(registry, synth, time.Second)
	plan := &planner.QueryPlan{
		Steps: []planner.Step{
			{Index: 0, Kind: planner.StepTool, Tool: "rag"},
			{Index: 1, Kind: planner.StepSynthesize},
		},
	}
	_, _, err := exec.Run(context.Background(), plan, tools.ExecContext{}, time.Now().Add(time.Minute), "")
	require.Error(t, err)
}

func TestExecutor_Run_PastDeadlineFailsImmediately(t *testing.T) {
	rag := &stubTool{name: "rag", output: tools.Output{}}
	registry := newTestRegistry(t, rag)
	synth := func(ctx context.Context, query string, steps []StepResult, history string) (tools.Output, error) {
		return tools.Output{}, nil
	}
	exec := New(registry, synth, time.Second)
	plan := &planner.QueryPlan{Steps: []planner.Step{{Index: 0, Kind: planner.StepTool, Tool: "rag"}}}

	_, _, err := exec.Run(context.Background(), plan, tools.ExecContext{}, time.Now().Add(-time.Second), "")
	require.Error(t, err)
}

func TestExecutor_Run_ResolvesStepOutputReference(t *testing.T) {
	rag := &stubTool{name: "rag", output: tools.Output{"answer": "42"}}
	calc := &stubTool{name: "calculator"}
	registry := newTestRegistry(t, rag, calc)

	synth := func(ctx context.Context, query string, steps []StepResult, history string) (tools.Output, error) {
		return tools.Output{"text": "done"}, nil
	}
	exec := New(registry, synth, time.Second)
	plan := &planner.QueryPlan{
		Steps: []planner.Step{
			{Index: 0, Kind: planner.StepTool, Tool: "rag"},
			{Index: 1, Kind: planner.StepTool, Tool: "calculator", Input: map[string]interface{}{"expression": "$step:0"}},
			{Index: 2, Kind: planner.StepSynthesize},
		},
	}

	_, _, err := exec.Run(context.Background(), plan, tools.ExecContext{}, time.Now().Add(time.Minute), "")
	require.NoError(t, err)
	assert.Contains(t, calc.lastIn["expression"], "answer")
}

func TestExecutor_Run_PlanWithoutSynthesizeStepFails(t *testing.T) {
	rag := &stubTool{name: "rag", output: tools.Output{}}
	registry := newTestRegistry(t, rag)
	synth := func(ctx context.Context, query string, steps []StepResult, history string) (tools.Output, error) {
		t.Fatal("synthesize must not be called")
		return nil, nil
	}
	exec := New(registry, synth, time.Second)
	plan := &planner.QueryPlan{Steps: []planner.Step{{Index: 0, Kind: planner.StepTool, Tool: "rag"}}}

	_, _, err := exec.Run(context.Background(), plan, tools.ExecContext{}, time.Now().Add(time.Minute), "")
	require.Error(t, err)
}
