// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanner_Analyze_NilClientDegradesToSimple(t *testing.T) {
	p := New(nil)
	a := p.Analyze(context.Background(), "what is in doc X?", "")
	assert.Equal(t, ComplexitySimple, a.Complexity)
	assert.Equal(t, []string{"rag"}, a.RequiresTools)
}

func TestPlanner_Plan_SimpleQueryProducesRagThenSynthesize(t *testing.T) {
	p := New(nil)
	plan, err := p.Plan(context.Background(), "summarize doc X", Analysis{Complexity: ComplexitySimple, RequiresTools: []string{"rag"}}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)

	assert.Equal(t, 0, plan.Steps[0].Index)
	assert.Equal(t, StepTool, plan.Steps[0].Kind)
	assert.Equal(t, "rag", plan.Steps[0].Tool)

	assert.Equal(t, 1, plan.Steps[1].Index)
	assert.Equal(t, StepSynthesize, plan.Steps[1].Kind)
	assert.True(t, plan.Steps[1].UseHistory)
}

func TestPlanner_Plan_ComplexQueryProducesToolStepsPerSubQuery(t *testing.T) {
	p := New(nil)
	analysis := Analysis{
		Complexity:    ComplexityComplex,
		RequiresTools: []string{"rag", "calculator"},
		SubQueries:    []string{"part one", "part two"},
	}
	plan, err := p.Plan(context.Background(), "complex query", analysis, map[string]bool{"rag": true, "calculator": true})
	require.NoError(t, err)

	// 2 tool steps (rag, calculator) + 2 sub-query rag steps + 1 synthesize
	require.Len(t, plan.Steps, 5)
	assert.Equal(t, StepSynthesize, plan.Steps[len(plan.Steps)-1].Kind)
	for i, step := range plan.Steps[:len(plan.Steps)-1] {
		assert.Equal(t, i, step.Index)
		assert.Equal(t, StepTool, step.Kind)
	}
}

func TestPlanner_Plan_DropsForbiddenToolsWithoutFailingQuery(t *testing.T) {
	p := New(nil)
	analysis := Analysis{Complexity: ComplexitySimple, RequiresTools: []string{"database"}}
	plan, err := p.Plan(context.Background(), "query", analysis, map[string]bool{"rag": true})
	require.NoError(t, err)

	// "database" was dropped, so it falls back to the default rag tool.
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "rag", plan.Steps[0].Tool)
	assert.Contains(t, plan.Analysis.Reasoning, "forbidden tools dropped")
	assert.Contains(t, plan.Analysis.Reasoning, "database")
}

func TestPlanner_Plan_RequiresQuery(t *testing.T) {
	p := New(nil)
	_, err := p.Plan(context.Background(), "", Analysis{}, nil)
	require.Error(t, err)
}

func TestMarshalTrace(t *testing.T) {
	p := New(nil)
	plan, err := p.Plan(context.Background(), "hi", Analysis{Complexity: ComplexitySimple}, nil)
	require.NoError(t, err)

	raw, err := MarshalTrace(plan)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Query":"hi"`)
}
