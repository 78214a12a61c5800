// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

package tools

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/northbound/hiverag/internal/errs"
)

// CalculatorTool evaluates arithmetic expressions (+ - * / % parentheses).
// Grounded on stdlib go/parser + go/token rather than a third-party
// expression evaluator: none of the example repos import one, and Go's own
// parser already recognizes arithmetic expression grammar exactly, so
// reaching for an external evaluator here would add a dependency the corpus
// gives no precedent for.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (c *CalculatorTool) Name() string        { return "calculator" }
func (c *CalculatorTool) Description() string { return "Evaluate an arithmetic expression." }

func (c *CalculatorTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {"expression": {"type": "string"}},
		"required": ["expression"]
	}`)
}

func (c *CalculatorTool) OutputSchema() []byte {
	return []byte(`{"type": "object", "properties": {"result": {"type": "number"}}}`)
}

func (c *CalculatorTool) Execute(ctx context.Context, input Input, ec ExecContext) (Output, error) {
	expr, _ := input["expression"].(string)
	if expr == "" {
		return nil, errs.Validationf("tools.calculator", "expression", "expression is required")
	}

	node, err := parser.ParseExpr(expr)
	if err != nil {
		return nil, errs.Wrap(errs.ToolExecution, "tools.calculator", err, "parse expression %q", expr)
	}

	result, err := evalNode(node)
	if err != nil {
		return nil, errs.Wrap(errs.ToolExecution, "tools.calculator", err, "evaluate %q", expr)
	}
	return Output{"result": result}, nil
}

func evalNode(n ast.Expr) (float64, error) {
	switch e := n.(type) {
	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			return 0, errs.Validationf("tools.calculator", "expression", "unsupported literal %q", e.Value)
		}
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return 0, errs.Wrap(errs.Validation, "tools.calculator", err, "parse literal %q", e.Value)
		}
		return v, nil
	case *ast.ParenExpr:
		return evalNode(e.X)
	case *ast.UnaryExpr:
		x, err := evalNode(e.X)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		default:
			return 0, errs.Validationf("tools.calculator", "expression", "unsupported unary operator %s", e.Op)
		}
	case *ast.BinaryExpr:
		x, err := evalNode(e.X)
		if err != nil {
			return 0, err
		}
		y, err := evalNode(e.Y)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, errs.Validationf("tools.calculator", "expression", "division by zero")
			}
			return x / y, nil
		case token.REM:
			if y == 0 {
				return 0, errs.Validationf("tools.calculator", "expression", "division by zero")
			}
			return float64(int64(x) % int64(y)), nil
		default:
			return 0, errs.Validationf("tools.calculator", "expression", "unsupported operator %s", e.Op)
		}
	default:
		return 0, errs.Validationf("tools.calculator", "expression", "unsupported expression")
	}
}
