// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/hiverag/internal/access"
)

func TestMemoryIndex_Search_RanksByCosineSimilarity(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Point{
		{ChunkID: "close", DocumentID: "doc-1", OwnerID: "alice", Visibility: access.VisibilityPrivate, Vector: []float32{1, 0, 0}},
		{ChunkID: "far", DocumentID: "doc-1", OwnerID: "alice", Visibility: access.VisibilityPrivate, Vector: []float32{0, 1, 0}},
	}))

	pred := access.Predicate{UserID: "alice", RequiredLevel: access.LevelRead}
	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, pred, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "close", hits[0].ChunkID)
	assert.Equal(t, "far", hits[1].ChunkID)
}

func TestMemoryIndex_Search_AppliesPermissionPreFilter(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Point{
		{ChunkID: "private-chunk", DocumentID: "doc-1", OwnerID: "alice", Visibility: access.VisibilityPrivate, Vector: []float32{1, 0, 0}},
		{ChunkID: "public-chunk", DocumentID: "doc-2", OwnerID: "alice", Visibility: access.VisibilityPublic, Vector: []float32{1, 0, 0}},
	}))

	pred := access.Predicate{UserID: "mallory", RequiredLevel: access.LevelRead}
	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, pred, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "public-chunk", hits[0].ChunkID)
}

func TestMemoryIndex_Search_RespectsRelevanceFloor(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Point{
		{ChunkID: "orthogonal", DocumentID: "doc-1", OwnerID: "alice", Visibility: access.VisibilityPrivate, Vector: []float32{0, 1, 0}},
	}))

	pred := access.Predicate{UserID: "alice", RequiredLevel: access.LevelRead}
	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, pred, 0.5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_Search_CapsToTopK(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Point{
		{ChunkID: "a", DocumentID: "doc-1", OwnerID: "alice", Vector: []float32{1, 0, 0}},
		{ChunkID: "b", DocumentID: "doc-1", OwnerID: "alice", Vector: []float32{1, 0, 0}},
		{ChunkID: "c", DocumentID: "doc-1", OwnerID: "alice", Vector: []float32{1, 0, 0}},
	}))

	pred := access.Predicate{UserID: "alice", RequiredLevel: access.LevelRead}
	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2, pred, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMemoryIndex_DeleteByDocument(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Point{
		{ChunkID: "a", DocumentID: "doc-1", Vector: []float32{1, 0, 0}},
		{ChunkID: "b", DocumentID: "doc-2", Vector: []float32{1, 0, 0}},
	}))

	require.NoError(t, idx.DeleteByDocument(ctx, "doc-1"))
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryIndex_DeleteByChunk(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Point{{ChunkID: "a", DocumentID: "doc-1", Vector: []float32{1, 0, 0}}}))

	require.NoError(t, idx.DeleteByChunk(ctx, "a"))
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryIndex_UpdateTags(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Point{{ChunkID: "a", DocumentID: "doc-1", OwnerID: "alice", Vector: []float32{1, 0, 0}}}))
	require.NoError(t, idx.UpdateTags(ctx, "a", []string{"reviewed"}))

	pred := access.Predicate{UserID: "alice", RequiredLevel: access.LevelRead}
	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, pred, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []string{"reviewed"}, hits[0].Tags)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, float64(cosine([]float32{1, 0}, []float32{1, 0})), 0.0001)
	assert.InDelta(t, 0.0, float64(cosine([]float32{1, 0}, []float32{0, 1})), 0.0001)
	assert.Equal(t, float32(0), cosine(nil, []float32{1}))
	assert.Equal(t, float32(0), cosine([]float32{1, 2}, []float32{1}))
}
