// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package tools implements the uniform tool contract (§6, §9) the Plan
// Executor dispatches against: a fixed capability set {describe, execute,
// input-schema, output-schema} with a small, closed set of variants
// registered by name. Grounded in shape on Ebentim's
// internal/tool/aitools.go JSON-schema tool definitions, generalized from
// an OpenAI function-calling param to this engine's own contract (tools
// here are invoked by the Plan Executor directly, not by the model).
package tools

import (
	"context"
	"time"

	"github.com/northbound/hiverag/internal/errs"
)

// Input is a tool invocation's parsed argument map.
type Input map[string]interface{}

// Output is a tool's result, serialized into the plan step's trace entry.
type Output map[string]interface{}

// ExecContext carries the caller identity and deadline every tool
// invocation needs (§5 — every tool invocation carries a deadline derived
// from the query deadline minus elapsed time).
type ExecContext struct {
	UserID    string
	RequestID string
	Deadline  time.Time
}

// Tool is the polymorphic abstraction §9 calls for: RAGTool,
// CalculatorTool, and DatabaseTool are the variants the engine registers,
// and registration by name is the only dynamism.
type Tool interface {
	Name() string
	Description() string
	InputSchema() []byte
	OutputSchema() []byte
	Execute(ctx context.Context, input Input, ec ExecContext) (Output, error)
}

// Registry looks up tools by name. It is constructed once at startup with
// an explicit set of tools — no module-load-time side effects, no global
// mutable map (§9).
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a Registry from an explicit tool list. Registering
// two tools under the same name is a boot-time configuration error.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if _, exists := r.tools[t.Name()]; exists {
			return nil, errs.Validationf("tools.Registry", "name", "duplicate tool name %q", t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r, nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool's name, in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
