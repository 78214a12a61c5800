// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

package tools

import (
	"context"
	"sort"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/errs"
	"github.com/northbound/hiverag/internal/logger"
	"github.com/northbound/hiverag/internal/resources"
	"github.com/northbound/hiverag/internal/retrievaljudge"
	"github.com/northbound/hiverag/internal/store"
	"github.com/northbound/hiverag/internal/vectorindex"
)

const (
	excerptLen = 400
)

// RAGToolConfig controls the retrieval loop's bounds (§4.10, §6
// retrieval.*).
type RAGToolConfig struct {
	MaxIterations  int
	TopK           int
	RelevanceFloor float32
}

// RAGTool is the `rag` tool: embed query, search the security-aware vector
// index, post-filter against live permissions, and iterate under the
// Retrieval Judge's direction. Grounded on the teacher's query/retrieval
// flow, generalized to the agentic loop the expanded spec calls for. The
// vector index, embedder, and document/chunk store lookups are all
// acquired from the Resource Manager rather than held directly, so the
// retrieval loop's concurrency is bounded by the same pools the ingestion
// workers share (§4.1, §5).
type RAGTool struct {
	resMgr    *resources.Manager
	accessSvc *access.Service
	judge     *retrievaljudge.Judge
	cfg       RAGToolConfig
}

func NewRAGTool(resMgr *resources.Manager, accessSvc *access.Service, judge *retrievaljudge.Judge, cfg RAGToolConfig) *RAGTool {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 2
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &RAGTool{resMgr: resMgr, accessSvc: accessSvc, judge: judge, cfg: cfg}
}

func (t *RAGTool) Name() string        { return "rag" }
func (t *RAGTool) Description() string { return "Retrieve passages from the document index relevant to a query, subject to the caller's access grants." }

func (t *RAGTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"history": {"type": "string"}
		},
		"required": ["query"]
	}`)
}

func (t *RAGTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"chunks": {"type": "array"},
			"iterations": {"type": "integer"}
		}
	}`)
}

// citedChunk is one accumulated, deduplicated retrieval result carried
// across loop iterations.
type citedChunk struct {
	ChunkID       string
	DocumentID    string
	Filename      string
	Content       string
	Score         float32
	ChunkIndex    int
	DocCreatedAtU int64 // unix seconds, for the across-document tie-break
}

// Execute runs the bounded retrieval loop described in §4.10:
//  1. embed the query and search with the permission pre-filter applied
//  2. re-check every hit against live grants, dropping and logging any that
//     fail (a potential permission-change event)
//  3. on non-final iterations, ask the Retrieval Judge whether to refine
//  4. accumulate and dedupe by chunk id across iterations
//  5. apply the judge's relevance filter / re-rank when present
//  6. tie-break (score desc; equal score → earlier chunk index within a
//     document wins; across documents → the most recently uploaded wins)
//     and cap to top_k.
func (t *RAGTool) Execute(ctx context.Context, input Input, ec ExecContext) (Output, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return nil, errs.Validationf("tools.rag", "query", "query is required")
	}
	history, _ := input["history"].(string)

	storeH, err := t.resMgr.Acquire(ctx, resources.KindStore)
	if err != nil {
		return nil, err
	}
	defer storeH.Release()
	indexH, err := t.resMgr.Acquire(ctx, resources.KindIndex)
	if err != nil {
		return nil, err
	}
	defer indexH.Release()
	llmH, err := t.resMgr.Acquire(ctx, resources.KindLLM)
	if err != nil {
		return nil, err
	}
	defer llmH.Release()

	requestID := ec.RequestID
	if requestID == "" {
		requestID = ec.UserID
	}
	pred := t.accessSvc.PredicateFor(ctx, requestID, ec.UserID, access.LevelRead, nil)

	accumulated := make(map[string]citedChunk)
	docCache := make(map[string]*store.Document)
	iterations := 0
	currentQuery := query
	var lastReRank []string

	for i := 0; i < t.cfg.MaxIterations; i++ {
		iterations++
		last := i == t.cfg.MaxIterations-1

		vec, err := llmH.Embedder.EmbedText(ctx, currentQuery)
		if err != nil {
			if partial, ok := t.partialOnDeadline(ctx, accumulated, iterations, err); ok {
				return partial, nil
			}
			return nil, errs.Wrap(errs.Transient, "tools.rag", err, "embed query")
		}

		hits, err := indexH.Index.Search(ctx, vec, t.cfg.TopK, pred, t.cfg.RelevanceFloor)
		if err != nil {
			if partial, ok := t.partialOnDeadline(ctx, accumulated, iterations, err); ok {
				return partial, nil
			}
			return nil, errs.Wrap(errs.Transient, "tools.rag", err, "search index")
		}

		kept := t.postFilter(ctx, ec.UserID, hits)

		newIDs := make([]string, 0, len(kept))
		for _, h := range kept {
			if _, seen := accumulated[h.ChunkID]; !seen {
				newIDs = append(newIDs, h.ChunkID)
			}
		}
		chunkIndexOf := make(map[string]int, len(newIDs))
		if len(newIDs) > 0 {
			rows, err := storeH.Store.Chunks.GetByIDs(ctx, newIDs)
			if err == nil {
				for _, c := range rows {
					chunkIndexOf[c.ID] = c.Index
				}
			}
		}

		for _, h := range kept {
			if _, seen := accumulated[h.ChunkID]; seen {
				continue
			}
			doc, ok := docCache[h.DocumentID]
			if !ok {
				doc, err = storeH.Store.Documents.Get(ctx, h.DocumentID)
				if err != nil {
					continue // document vanished between index write and read; skip, don't fail the query
				}
				docCache[h.DocumentID] = doc
			}
			accumulated[h.ChunkID] = citedChunk{
				ChunkID:       h.ChunkID,
				DocumentID:    h.DocumentID,
				Filename:      doc.Filename,
				Content:       h.Content,
				Score:         h.Score,
				ChunkIndex:    chunkIndexOf[h.ChunkID],
				DocCreatedAtU: doc.CreatedAt.Unix(),
			}
		}

		if last {
			break
		}

		summaries := make([]retrievaljudge.ChunkSummary, 0, len(accumulated))
		for _, c := range accumulated {
			summaries = append(summaries, retrievaljudge.ChunkSummary{ChunkID: c.ChunkID, Excerpt: truncate(c.Content, excerptLen)})
		}
		verdict := t.judge.Evaluate(ctx, query, summaries, history)

		if verdict.RelevantChunkIDs != nil {
			applyRelevanceFilter(accumulated, verdict.RelevantChunkIDs)
		}
		if verdict.ReRankChunkIDs != nil {
			lastReRank = verdict.ReRankChunkIDs
		}

		if !verdict.RequestMore {
			break
		}
		currentQuery = verdict.RefinedQuery
	}

	ordered := rankChunks(accumulated, lastReRank)
	if len(ordered) > t.cfg.TopK {
		ordered = ordered[:t.cfg.TopK]
	}

	out := make([]map[string]interface{}, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, map[string]interface{}{
			"chunk_id":    c.ChunkID,
			"document_id": c.DocumentID,
			"filename":    c.Filename,
			"content":     c.Content,
			"score":       c.Score,
		})
	}
	return Output{"chunks": out, "iterations": iterations}, nil
}

// partialOnDeadline reports whether err stems from the step's own deadline
// elapsing mid-loop, and if so renders whatever has been accumulated so far
// as the tool's output instead of failing the step outright (§7 — on
// deadline, the rag tool accepts partial chunks rather than erroring; only
// synthesize aborts the query).
func (t *RAGTool) partialOnDeadline(ctx context.Context, accumulated map[string]citedChunk, iterations int, err error) (Output, bool) {
	if ctx.Err() != context.DeadlineExceeded && errs.KindOf(err) != errs.Timeout {
		return nil, false
	}
	ordered := rankChunks(accumulated, nil)
	if len(ordered) > t.cfg.TopK {
		ordered = ordered[:t.cfg.TopK]
	}
	out := make([]map[string]interface{}, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, map[string]interface{}{
			"chunk_id":    c.ChunkID,
			"document_id": c.DocumentID,
			"filename":    c.Filename,
			"content":     c.Content,
			"score":       c.Score,
		})
	}
	return Output{"chunks": out, "iterations": iterations, "partial": true}, true
}

// postFilter re-checks every hit's owning document against the caller's
// live grants, dropping any hit the pre-filter let through but that the
// authoritative check now rejects, and logging the drop as a potential
// permission-change signal (§4.10 step 2).
func (t *RAGTool) postFilter(ctx context.Context, userID string, hits []vectorindex.Hit) []vectorindex.Hit {
	kept := make([]vectorindex.Hit, 0, len(hits))
	for _, h := range hits {
		ok, err := t.accessSvc.Check(ctx, userID, h.DocumentID, access.LevelRead)
		if err != nil || !ok {
			logger.Warnf("rag: post-filter dropped chunk %s (document %s) for user %s: permission re-check failed, possible permission-change event", h.ChunkID, h.DocumentID, userID)
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

func applyRelevanceFilter(accumulated map[string]citedChunk, keepIDs []string) {
	keep := make(map[string]bool, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = true
	}
	for id := range accumulated {
		if !keep[id] {
			delete(accumulated, id)
		}
	}
}

// rankChunks sorts the accumulated chunk set by score descending, breaking
// ties first by chunk index within the same document (earlier wins), then
// by which document was uploaded most recently (§4.10 tie-break rule).
// When reRank is non-nil, it takes precedence and chunks are ordered by
// their position in that list, with chunks absent from it appended in
// score order after.
func rankChunks(accumulated map[string]citedChunk, reRank []string) []citedChunk {
	all := make([]citedChunk, 0, len(accumulated))
	for _, c := range accumulated {
		all = append(all, c)
	}

	if len(reRank) > 0 {
		pos := make(map[string]int, len(reRank))
		for i, id := range reRank {
			pos[id] = i
		}
		sort.SliceStable(all, func(i, j int) bool {
			pi, oki := pos[all[i].ChunkID]
			pj, okj := pos[all[j].ChunkID]
			if oki && okj {
				return pi < pj
			}
			if oki != okj {
				return oki
			}
			return ranksBefore(all[i], all[j])
		})
		return all
	}

	sort.SliceStable(all, func(i, j int) bool { return ranksBefore(all[i], all[j]) })
	return all
}

// ranksBefore reports whether a should sort ahead of b: higher score wins;
// a tie within the same document goes to the earlier chunk ordinal; a tie
// across documents goes to the more recently uploaded document.
func ranksBefore(a, b citedChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DocumentID == b.DocumentID {
		return a.ChunkIndex < b.ChunkIndex
	}
	return a.DocCreatedAtU > b.DocCreatedAtU
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
