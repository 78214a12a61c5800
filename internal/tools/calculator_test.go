// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatorTool_Execute(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected float64
		wantErr  bool
	}{
		{name: "addition", expr: "2 + 3", expected: 5},
		{name: "precedence", expr: "2 + 3 * 4", expected: 14},
		{name: "parentheses", expr: "(2 + 3) * 4", expected: 20},
		{name: "negative unary", expr: "-5 + 10", expected: 5},
		{name: "division", expr: "10 / 4", expected: 2.5},
		{name: "modulo", expr: "10 % 3", expected: 1},
		{name: "division by zero", expr: "1 / 0", wantErr: true},
		{name: "missing expression", expr: "", wantErr: true},
		{name: "unparseable", expr: "2 +", wantErr: true},
		{name: "string literal unsupported", expr: `"abc"`, wantErr: true},
	}

	c := NewCalculatorTool()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Execute(context.Background(), Input{"expression": tt.expr}, ExecContext{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out["result"])
		})
	}
}

func TestCalculatorTool_Name(t *testing.T) {
	c := NewCalculatorTool()
	assert.Equal(t, "calculator", c.Name())
	assert.NotEmpty(t, c.InputSchema())
	assert.NotEmpty(t, c.OutputSchema())
}
