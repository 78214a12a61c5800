// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package tools

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/blobstore"
	"github.com/northbound/hiverag/internal/resources"
	"github.com/northbound/hiverag/internal/retrievaljudge"
	"github.com/northbound/hiverag/internal/store"
	"github.com/northbound/hiverag/internal/vectorindex"
)

// fakeEmbedder returns a fixed vector regardless of input, enough to drive
// vectorindex.MemoryIndex's cosine search deterministically in tests.
type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}
func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}
func (f fakeEmbedder) Dimension() int { return len(f.vec) }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st, err := store.New(db)
	require.NoError(t, err)
	return st
}

func seedDocument(t *testing.T, st *store.Store, docID, ownerID string, createdAt time.Time) {
	t.Helper()
	err := st.Documents.Create(context.Background(), &store.Document{
		ID: docID, OwnerID: ownerID, Filename: docID + ".txt", Visibility: access.VisibilityPrivate,
	})
	require.NoError(t, err)
}

func seedChunks(t *testing.T, st *store.Store, docID, ownerID string, ids []string) {
	t.Helper()
	chunks := make([]*store.Chunk, len(ids))
	for i, id := range ids {
		chunks[i] = &store.Chunk{ID: id, DocumentID: docID, Index: i, Content: "chunk " + id, OwnerID: ownerID}
	}
	require.NoError(t, st.Chunks.ReplaceAll(context.Background(), docID, chunks))
}

// newRAGFixture wires a RAGTool over a real in-memory sqlite store and a
// real in-process MemoryIndex so the full permission pre-filter/post-filter
// and tie-break path is exercised, not just mocked return values.
func newRAGFixture(t *testing.T) (*RAGTool, *vectorindex.MemoryIndex, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	idx := vectorindex.NewMemoryIndex()
	accessSvc := access.NewService(nil, st, st.Permissions)
	judge := retrievaljudge.New(nil, false)
	resMgr := resources.New(resources.Config{}, st, idx, nil, fakeEmbedder{vec: []float32{1, 0, 0}}, blobstore.NewMemoryStore())
	rag := NewRAGTool(resMgr, accessSvc, judge, RAGToolConfig{
		MaxIterations: 1, TopK: 10, RelevanceFloor: 0,
	})
	return rag, idx, st
}

func TestRAGTool_Execute_OwnerCanRetrieveOwnDocument(t *testing.T) {
	rag, idx, st := newRAGFixture(t)
	ctx := context.Background()

	seedDocument(t, st, "doc-1", "alice", time.Now())
	seedChunks(t, st, "doc-1", "alice", []string{"chunk-a"})
	require.NoError(t, idx.Upsert(ctx, []vectorindex.Point{
		{ChunkID: "chunk-a", DocumentID: "doc-1", OwnerID: "alice", Visibility: access.VisibilityPrivate, Content: "hello world", Vector: []float32{1, 0, 0}},
	}))

	out, err := rag.Execute(ctx, Input{"query": "hello"}, ExecContext{UserID: "alice", RequestID: "req-1"})
	require.NoError(t, err)

	chunks, ok := out["chunks"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, chunks, 1)
	require.Equal(t, "chunk-a", chunks[0]["chunk_id"])
}

func TestRAGTool_Execute_StrangerCannotRetrievePrivateDocument(t *testing.T) {
	rag, idx, st := newRAGFixture(t)
	ctx := context.Background()

	seedDocument(t, st, "doc-1", "alice", time.Now())
	seedChunks(t, st, "doc-1", "alice", []string{"chunk-a"})
	require.NoError(t, idx.Upsert(ctx, []vectorindex.Point{
		{ChunkID: "chunk-a", DocumentID: "doc-1", OwnerID: "alice", Visibility: access.VisibilityPrivate, Content: "hello world", Vector: []float32{1, 0, 0}},
	}))

	out, err := rag.Execute(ctx, Input{"query": "hello"}, ExecContext{UserID: "mallory", RequestID: "req-2"})
	require.NoError(t, err)

	chunks, _ := out["chunks"].([]map[string]interface{})
	require.Empty(t, chunks)
}

func TestRAGTool_Execute_RequiresQuery(t *testing.T) {
	rag, _, _ := newRAGFixture(t)
	_, err := rag.Execute(context.Background(), Input{}, ExecContext{UserID: "alice"})
	require.Error(t, err)
}

func TestRanksBefore_ScoreTakesPriority(t *testing.T) {
	a := citedChunk{ChunkID: "a", Score: 0.9}
	b := citedChunk{ChunkID: "b", Score: 0.5}
	require.True(t, ranksBefore(a, b))
	require.False(t, ranksBefore(b, a))
}

func TestRanksBefore_SameDocumentTieBreaksOnEarlierChunkIndex(t *testing.T) {
	a := citedChunk{ChunkID: "a", DocumentID: "doc-1", Score: 0.5, ChunkIndex: 1}
	b := citedChunk{ChunkID: "b", DocumentID: "doc-1", Score: 0.5, ChunkIndex: 3}
	require.True(t, ranksBefore(a, b))
}

func TestRanksBefore_CrossDocumentTieBreaksOnMostRecentUpload(t *testing.T) {
	older := citedChunk{ChunkID: "a", DocumentID: "doc-old", Score: 0.5, DocCreatedAtU: 100}
	newer := citedChunk{ChunkID: "b", DocumentID: "doc-new", Score: 0.5, DocCreatedAtU: 200}
	require.True(t, ranksBefore(newer, older))
	require.False(t, ranksBefore(older, newer))
}

func TestRankChunks_ReRankOverridesScoreOrder(t *testing.T) {
	accumulated := map[string]citedChunk{
		"low":  {ChunkID: "low", Score: 0.1},
		"high": {ChunkID: "high", Score: 0.9},
	}
	ordered := rankChunks(accumulated, []string{"low", "high"})
	require.Len(t, ordered, 2)
	require.Equal(t, "low", ordered[0].ChunkID)
	require.Equal(t, "high", ordered[1].ChunkID)
}

func TestRAGTool_PartialOnDeadline_ReturnsAccumulatedChunksNoError(t *testing.T) {
	rag, _, _ := newRAGFixture(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	require.Error(t, ctx.Err())

	accumulated := map[string]citedChunk{
		"chunk-a": {ChunkID: "chunk-a", DocumentID: "doc-1", Score: 0.8},
	}
	out, ok := rag.partialOnDeadline(ctx, accumulated, 1, context.DeadlineExceeded)
	require.True(t, ok)
	require.Equal(t, true, out["partial"])
	chunks, ok := out["chunks"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, chunks, 1)
	require.Equal(t, "chunk-a", chunks[0]["chunk_id"])
}

func TestRAGTool_PartialOnDeadline_FalseForNonDeadlineError(t *testing.T) {
	rag, _, _ := newRAGFixture(t)
	_, ok := rag.partialOnDeadline(context.Background(), map[string]citedChunk{}, 1, errors.New("boom"))
	require.False(t, ok)
}

func TestRankChunks_NoReRankFallsBackToScoreOrder(t *testing.T) {
	accumulated := map[string]citedChunk{
		"low":  {ChunkID: "low", Score: 0.1},
		"high": {ChunkID: "high", Score: 0.9},
	}
	ordered := rankChunks(accumulated, nil)
	require.Len(t, ordered, 2)
	require.Equal(t, "high", ordered[0].ChunkID)
	require.Equal(t, "low", ordered[1].ChunkID)
}
