// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package executor implements the Plan Executor (§4.10): it runs a
// planner.QueryPlan's steps in strict order, resolving each step's tool
// from the registry, substituting prior-step output references, and
// enforcing a per-step deadline derived from the query's remaining budget.
// It never reaches into a step for its parent plan — the plan owns the
// steps, and the executor walks them by index, matching the index-based
// reference design in §9.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/northbound/hiverag/internal/errs"
	"github.com/northbound/hiverag/internal/planner"
	"github.com/northbound/hiverag/internal/tools"
)

// StepResult captures one step's outcome for the audit trail (§4.12).
type StepResult struct {
	Index    int
	Tool     string
	Kind     planner.StepKind
	Output   tools.Output
	Err      error
	Started  time.Time
	Finished time.Time
}

// SynthesizeFunc composes the final answer from every prior tool step's
// accumulated output, plus conversation history when the step requests it.
// cmd/ragengine's newSynthesizeFunc adapts internal/synth.Pipeline.Compose
// to this signature.
type SynthesizeFunc func(ctx context.Context, query string, toolOutputs []StepResult, history string) (tools.Output, error)

// Executor runs one QueryPlan to completion.
type Executor struct {
	registry  *tools.Registry
	synthesize SynthesizeFunc
	toolDeadline time.Duration
}

func New(registry *tools.Registry, synthesize SynthesizeFunc, toolDeadline time.Duration) *Executor {
	if toolDeadline <= 0 {
		toolDeadline = 10 * time.Second
	}
	return &Executor{registry: registry, synthesize: synthesize, toolDeadline: toolDeadline}
}

// Run executes plan's steps in order against queryDeadline, stopping and
// returning an error immediately if the overall query deadline has already
// elapsed or if the synthesize step itself fails. A tool step's failure is
// confined to that step (§7 — Tool-execution errors are confined to their
// plan step): it is recorded in the returned trace with its error and
// execution continues, so the Synthesizer can still run and synthesize
// around the gap. history is rendered plain text from prior conversation
// turns, passed to any synthesize step flagged UseHistory.
func (e *Executor) Run(ctx context.Context, plan *planner.QueryPlan, ec tools.ExecContext, queryDeadline time.Time, history string) ([]StepResult, tools.Output, error) {
	results := make([]StepResult, 0, len(plan.Steps))

	for _, step := range plan.Steps {
		if time.Now().After(queryDeadline) {
			return results, nil, errs.New(errs.Timeout, "executor", "query deadline exceeded before step %d", step.Index)
		}

		stepDeadline := queryDeadline
		if byToolDeadline := time.Now().Add(e.toolDeadline); byToolDeadline.Before(stepDeadline) {
			stepDeadline = byToolDeadline
		}
		stepCtx, cancel := context.WithDeadline(ctx, stepDeadline)

		if step.Kind == planner.StepSynthesize {
			var hist string
			if step.UseHistory {
				hist = history
			}
			out, err := e.synthesize(stepCtx, plan.Query, results, hist)
			cancel()
			sr := StepResult{Index: step.Index, Kind: step.Kind, Output: out, Err: err, Finished: time.Now()}
			results = append(results, sr)
			if err != nil {
				return results, nil, err
			}
			return results, out, nil
		}

		tool, ok := e.registry.Get(step.Tool)
		if !ok {
			cancel()
			sr := StepResult{
				Index: step.Index, Tool: step.Tool, Kind: step.Kind, Started: time.Now(), Finished: time.Now(),
				Err: errs.NotFoundf("executor", "tool %q is not registered", step.Tool),
			}
			results = append(results, sr)
			continue
		}

		input := resolveInput(step.Input, results)
		stepEC := ec
		stepEC.Deadline = stepDeadline

		started := time.Now()
		out, err := tool.Execute(stepCtx, input, stepEC)
		cancel()

		sr := StepResult{Index: step.Index, Tool: step.Tool, Kind: step.Kind, Output: out, Err: err, Started: started, Finished: time.Now()}
		if err != nil {
			sr.Err = errs.Wrap(errs.ToolExecution, "executor", err, "step %d (%s) failed", step.Index, step.Tool)
		}
		results = append(results, sr)
	}

	return results, nil, errs.New(errs.Validation, "executor", "plan has no synthesize step")
}

// resolveInput substitutes any "$step:<n>" string value in input with the
// fmt %v rendering of results[n].Output, falling back to the literal string if
// the reference cannot be resolved (e.g. the referenced step has not run
// yet, which indicates a malformed plan rather than a recoverable state).
func resolveInput(input map[string]interface{}, results []StepResult) tools.Input {
	out := make(tools.Input, len(input))
	for k, v := range input {
		if s, ok := v.(string); ok {
			if n, isRef := parseStepRef(s); isRef {
				if n >= 0 && n < len(results) {
					out[k] = fmt.Sprintf("%v", results[n].Output)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func parseStepRef(s string) (int, bool) {
	const prefix = "$step:"
	if !strings.HasPrefix(s, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
