// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/northbound/hiverag/internal/access"
)

// MemoryIndex is an in-process Index backed by brute-force cosine
// similarity, used for local development and tests when no Qdrant
// endpoint is configured, generalizing the teacher's no-op
// MockVectorDB into a functionally real fallback the query pipeline can
// actually exercise.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]Point)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ChunkID] = p
	}
	return nil
}

// Search applies the permission pre-filter via access.Predicate.Allows
// against a DocumentMeta synthesized from the point's own snapshot, then
// ranks survivors by cosine similarity above relevanceFloor.
func (m *MemoryIndex) Search(ctx context.Context, queryVector []float32, topK int, pred access.Predicate, relevanceFloor float32) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		topK = 10
	}

	hits := make([]Hit, 0, len(m.points))
	for _, p := range m.points {
		doc := access.DocumentMeta{
			ID:         p.DocumentID,
			OwnerID:    p.OwnerID,
			Visibility: p.Visibility,
			Grants:     sharedWithGrants(p.SharedWith),
		}
		if !pred.Allows(doc) {
			continue
		}
		score := cosine(queryVector, p.Vector)
		if score < relevanceFloor {
			continue
		}
		hits = append(hits, Hit{
			ChunkID: p.ChunkID, DocumentID: p.DocumentID, Score: score,
			Content: p.Content, OwnerID: p.OwnerID, Visibility: p.Visibility, Tags: p.Tags,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// sharedWithGrants turns the denormalized SharedWith principal list back
// into read-level user grants, enough for Predicate.Allows to evaluate.
func sharedWithGrants(sharedWith []string) []access.Grant {
	grants := make([]access.Grant, 0, len(sharedWith))
	for _, principal := range sharedWith {
		grants = append(grants, access.Grant{Principal: principal, Kind: access.GranteeUser, Level: access.LevelRead})
	}
	return grants
}

func (m *MemoryIndex) UpdateTags(ctx context.Context, chunkID string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[chunkID]
	if !ok {
		return nil
	}
	p.Tags = tags
	m.points[chunkID] = p
	return nil
}

func (m *MemoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryIndex) DeleteByChunk(ctx context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points, chunkID)
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
