// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/errs"
)

// Chunk is the §3 Chunk record: a dense, 0-based ordinal slice of a
// document's text, plus the permission snapshot it was produced under
// (§4.10 — a chunk's retrievability is re-checked against live grants, but
// the snapshot lets an audit explain what was true at ingestion time).
type Chunk struct {
	ID                string
	DocumentID        string
	Index             int
	Content           string
	TokenCount        int
	OwnerID           string
	VisibilitySnapshot access.Visibility
	CreatedAt         time.Time
}

type ChunkStore struct {
	db *sql.DB
}

func newChunkStore(db *sql.DB) (*ChunkStore, error) {
	s := &ChunkStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("store: init chunks schema: %w", err)
	}
	return s, nil
}

func (s *ChunkStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		owner_id TEXT NOT NULL,
		visibility_snapshot TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_document_index ON chunks(document_id, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks(owner_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ReplaceAll atomically drops a document's existing chunks and inserts the
// new set, preserving the dense 0-based ordinal invariant from §3. Used
// both on first ingestion and on re-ingestion.
func (s *ChunkStore) ReplaceAll(ctx context.Context, documentID string, chunks []*Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.chunks", err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return errs.Wrap(errs.Transient, "store.chunks", err, "delete existing chunks")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, content, token_count, owner_id, visibility_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.chunks", err, "prepare insert")
	}
	defer stmt.Close()

	for i, c := range chunks {
		if c.Index != i {
			return errs.New(errs.Validation, "store.chunks", "chunk ordinals must be dense and 0-based, got %d at position %d", c.Index, i)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, documentID, c.Index, c.Content, c.TokenCount, c.OwnerID, string(c.VisibilitySnapshot)); err != nil {
			return errs.Wrap(errs.Transient, "store.chunks", err, "insert chunk")
		}
	}
	return tx.Commit()
}

func (s *ChunkStore) ListByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, owner_id, visibility_snapshot, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.chunks", err, "list chunks")
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *ChunkStore) GetByIDs(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content, token_count, owner_id, visibility_snapshot, created_at
		FROM chunks WHERE id IN (%s)`, joinPlaceholders(placeholders))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.chunks", err, "get chunks by id")
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.chunks", err, "delete chunks")
	}
	return nil
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var visibility string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.TokenCount, &c.OwnerID, &visibility, &c.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.Transient, "store.chunks", err, "scan chunk")
		}
		c.VisibilitySnapshot = access.Visibility(visibility)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}
