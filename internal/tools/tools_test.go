// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct{ name string }

func (s stubTool) Name() string                                        { return s.name }
func (s stubTool) Description() string                                 { return "stub" }
func (s stubTool) InputSchema() []byte                                 { return []byte(`{}`) }
func (s stubTool) OutputSchema() []byte                                { return []byte(`{}`) }
func (s stubTool) Execute(context.Context, Input, ExecContext) (Output, error) { return Output{}, nil }

func TestNewRegistry_DuplicateNameRejected(t *testing.T) {
	_, err := NewRegistry(stubTool{name: "rag"}, stubTool{name: "rag"})
	require.Error(t, err)
}

func TestNewRegistry_GetAndNames(t *testing.T) {
	r, err := NewRegistry(stubTool{name: "rag"}, stubTool{name: "calculator"})
	require.NoError(t, err)

	tool, ok := r.Get("rag")
	require.True(t, ok)
	assert.Equal(t, "rag", tool.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"rag", "calculator"}, r.Names())
}
