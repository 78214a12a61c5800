// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

package tools

import (
	"context"

	"github.com/northbound/hiverag/internal/errs"
	"github.com/northbound/hiverag/internal/resources"
)

// DatabaseTool answers a small safelist of analytics questions over the
// caller's own documents. It never accepts caller-supplied SQL — the
// "operation" field selects one of a fixed set of named operations, so the
// structured-data tool can never become an injection surface (§4.9/§4.10,
// "database" tool). The analytics store is acquired from the Resource
// Manager per call rather than held directly, keeping this hot path under
// the same pool the ingestion workers share (§4.1, §5).
type DatabaseTool struct {
	resMgr *resources.Manager
}

func NewDatabaseTool(resMgr *resources.Manager) *DatabaseTool {
	return &DatabaseTool{resMgr: resMgr}
}

func (d *DatabaseTool) Name() string { return "database" }
func (d *DatabaseTool) Description() string {
	return "Answer a fixed set of analytics questions about the caller's documents (counts by status, total documents, chunk count)."
}

func (d *DatabaseTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["count_by_status", "total_documents", "chunk_count"]},
			"document_id": {"type": "string"}
		},
		"required": ["operation"]
	}`)
}

func (d *DatabaseTool) OutputSchema() []byte {
	return []byte(`{"type": "object"}`)
}

func (d *DatabaseTool) Execute(ctx context.Context, input Input, ec ExecContext) (Output, error) {
	storeH, err := d.resMgr.Acquire(ctx, resources.KindStore)
	if err != nil {
		return nil, err
	}
	defer storeH.Release()
	analytics := storeH.Store.Analytics

	op, _ := input["operation"].(string)
	switch op {
	case "count_by_status":
		counts, err := analytics.DocumentCountByStatus(ctx, ec.UserID)
		if err != nil {
			return nil, err
		}
		out := make(Output, len(counts))
		for status, n := range counts {
			out[status] = n
		}
		return out, nil
	case "total_documents":
		n, err := analytics.TotalDocuments(ctx, ec.UserID)
		if err != nil {
			return nil, err
		}
		return Output{"total": n}, nil
	case "chunk_count":
		docID, _ := input["document_id"].(string)
		if docID == "" {
			return nil, errs.Validationf("tools.database", "document_id", "document_id is required for chunk_count")
		}
		n, err := analytics.ChunkCountByDocument(ctx, docID)
		if err != nil {
			return nil, err
		}
		return Output{"chunk_count": n}, nil
	default:
		return nil, errs.Validationf("tools.database", "operation", "unsupported operation %q", op)
	}
}
