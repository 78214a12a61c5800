// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/errs"
)

// ProcessingStatus tracks a document through the ingestion state machine
// described in §4.8.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusComplete   ProcessingStatus = "complete"
	StatusFailed     ProcessingStatus = "failed"
)

// Document is the §3 Document record.
type Document struct {
	ID             string
	OwnerID        string
	Filename       string
	FolderPath     string
	Tags           []string
	Metadata       map[string]string
	Visibility     access.Visibility
	Status         ProcessingStatus
	ChunkStrategy  string
	ChunkSize      int
	ChunkOverlap   int
	ErrorMessage   string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentStore persists Document rows.
type DocumentStore struct {
	db *sql.DB
}

func newDocumentStore(db *sql.DB) (*DocumentStore, error) {
	s := &DocumentStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("store: init documents schema: %w", err)
	}
	return s, nil
}

func (s *DocumentStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		folder_path TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		visibility TEXT NOT NULL DEFAULT 'private',
		status TEXT NOT NULL DEFAULT 'pending',
		chunk_strategy TEXT NOT NULL DEFAULT '',
		chunk_size INTEGER NOT NULL DEFAULT 0,
		chunk_overlap INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *DocumentStore) Create(ctx context.Context, d *Document) error {
	tags, err := json.Marshal(d.Tags)
	if err != nil {
		return errs.Wrap(errs.Validation, "store.documents", err, "marshal tags")
	}
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return errs.Wrap(errs.Validation, "store.documents", err, "marshal metadata")
	}
	if d.Visibility == "" {
		d.Visibility = access.VisibilityPrivate
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	d.Version = 1

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, filename, folder_path, tags, metadata, visibility, status,
			chunk_strategy, chunk_size, chunk_overlap, error_message, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Filename, d.FolderPath, string(tags), string(meta), string(d.Visibility), string(d.Status),
		d.ChunkStrategy, d.ChunkSize, d.ChunkOverlap, d.ErrorMessage, d.Version,
	)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.documents", err, "insert document")
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, filename, folder_path, tags, metadata, visibility, status,
			chunk_strategy, chunk_size, chunk_overlap, error_message, version, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var tags, meta, visibility, status string
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.FolderPath, &tags, &meta, &visibility, &status,
		&d.ChunkStrategy, &d.ChunkSize, &d.ChunkOverlap, &d.ErrorMessage, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFoundf("store.documents", "document not found")
		}
		return nil, errs.Wrap(errs.Transient, "store.documents", err, "scan document")
	}
	d.Visibility = access.Visibility(visibility)
	d.Status = ProcessingStatus(status)
	_ = json.Unmarshal([]byte(tags), &d.Tags)
	_ = json.Unmarshal([]byte(meta), &d.Metadata)
	return &d, nil
}

// UpdateStatus transitions a document's processing status, optionally
// recording an error message on a failed transition.
func (s *DocumentStore) UpdateStatus(ctx context.Context, id string, status ProcessingStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP, version = version + 1
		WHERE id = ?`, string(status), errMsg, id)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.documents", err, "update status")
	}
	return checkRowsAffected(res, "store.documents", id)
}

// UpdateChunkingPlan records the chunking strategy (selected by the
// Chunking Judge) and its parameters on a document.
func (s *DocumentStore) UpdateChunkingPlan(ctx context.Context, id, strategy string, size, overlap int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET chunk_strategy = ?, chunk_size = ?, chunk_overlap = ?,
			updated_at = CURRENT_TIMESTAMP, version = version + 1
		WHERE id = ?`, strategy, size, overlap, id)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.documents", err, "update chunking plan")
	}
	return checkRowsAffected(res, "store.documents", id)
}

// CompareAndSwapVersion applies mutate only if the row's version still
// matches expectedVersion, implementing the optimistic-concurrency rule in
// §3 (concurrent re-ingestion of the same document must not interleave).
func (s *DocumentStore) CompareAndSwapVersion(ctx context.Context, id string, expectedVersion int64, mutate func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.documents", err, "begin tx")
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx, "SELECT version FROM documents WHERE id = ?", id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return errs.NotFoundf("store.documents", "document not found")
		}
		return errs.Wrap(errs.Transient, "store.documents", err, "read version")
	}
	if current != expectedVersion {
		return errs.New(errs.Validation, "store.documents", "version conflict: expected %d, found %d", expectedVersion, current)
	}
	if err := mutate(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE documents SET version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id); err != nil {
		return errs.Wrap(errs.Transient, "store.documents", err, "bump version")
	}
	return tx.Commit()
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.documents", err, "delete document")
	}
	return checkRowsAffected(res, "store.documents", id)
}

// ListByOwner lists the documents ownerID owns (shared or public documents
// owned by others are not included), optionally filtered by folder path
// prefix.
func (s *DocumentStore) ListByOwner(ctx context.Context, ownerID, folderPrefix string) ([]*Document, error) {
	query := `SELECT id, owner_id, filename, folder_path, tags, metadata, visibility, status,
		chunk_strategy, chunk_size, chunk_overlap, error_message, version, created_at, updated_at
		FROM documents WHERE owner_id = ?`
	args := []interface{}{ownerID}
	if folderPrefix != "" {
		query += " AND folder_path LIKE ?"
		args = append(args, strings.TrimSuffix(folderPrefix, "/")+"%")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.documents", err, "list documents")
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var d Document
		var tags, meta, visibility, status string
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.FolderPath, &tags, &meta, &visibility, &status,
			&d.ChunkStrategy, &d.ChunkSize, &d.ChunkOverlap, &d.ErrorMessage, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, errs.Wrap(errs.Transient, "store.documents", err, "scan document row")
		}
		d.Visibility = access.Visibility(visibility)
		d.Status = ProcessingStatus(status)
		_ = json.Unmarshal([]byte(tags), &d.Tags)
		_ = json.Unmarshal([]byte(meta), &d.Metadata)
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func checkRowsAffected(res sql.Result, stage, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Transient, stage, err, "rows affected")
	}
	if n == 0 {
		return errs.NotFoundf(stage, "no row for id %s", id)
	}
	return nil
}
