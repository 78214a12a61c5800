// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/resources"
	"github.com/northbound/hiverag/internal/store"
)

func newDatabaseTestTool(t *testing.T, st *store.Store) *DatabaseTool {
	t.Helper()
	resMgr := resources.New(resources.Config{}, st, nil, nil, nil, nil)
	return NewDatabaseTool(resMgr)
}

func TestDatabaseTool_TotalDocuments(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, st, "doc-1", "alice", time.Now())
	seedDocument(t, st, "doc-2", "alice", time.Now())
	seedDocument(t, st, "doc-3", "bob", time.Now())

	tool := newDatabaseTestTool(t, st)
	out, err := tool.Execute(ctx, Input{"operation": "total_documents"}, ExecContext{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, out["total"])
}

func TestDatabaseTool_ChunkCount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, st, "doc-1", "alice", time.Now())
	seedChunks(t, st, "doc-1", "alice", []string{"c1", "c2", "c3"})

	tool := newDatabaseTestTool(t, st)
	out, err := tool.Execute(ctx, Input{"operation": "chunk_count", "document_id": "doc-1"}, ExecContext{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 3, out["chunk_count"])
}

func TestDatabaseTool_ChunkCount_RequiresDocumentID(t *testing.T) {
	st := newTestStore(t)
	tool := newDatabaseTestTool(t, st)
	_, err := tool.Execute(context.Background(), Input{"operation": "chunk_count"}, ExecContext{})
	require.Error(t, err)
}

func TestDatabaseTool_CountByStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Documents.Create(ctx, &store.Document{
		ID: "doc-1", OwnerID: "alice", Filename: "a.txt", Visibility: access.VisibilityPrivate, Status: store.StatusComplete,
	}))

	tool := newDatabaseTestTool(t, st)
	out, err := tool.Execute(ctx, Input{"operation": "count_by_status"}, ExecContext{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, out["complete"])
}

func TestDatabaseTool_UnsupportedOperation(t *testing.T) {
	st := newTestStore(t)
	tool := newDatabaseTestTool(t, st)
	_, err := tool.Execute(context.Background(), Input{"operation": "drop_table"}, ExecContext{})
	require.Error(t, err)
}
