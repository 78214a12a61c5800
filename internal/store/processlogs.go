// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/northbound/hiverag/internal/errs"
)

// ProcessLog is the append-then-seal audit record for one query (§4.12):
// every stage of the pipeline appends an entry, and the record is sealed
// with a final verdict once the Synthesizer/Evaluator finishes.
type ProcessLog struct {
	ID                 string
	OwnerID            string
	QueryText          string
	EntriesJSON        string // append-only ordered log of stage entries
	Sealed             bool
	FinalVerdict       string
	DocumentsCitedJSON string
	CreatedAt          time.Time
	SealedAt           sql.NullTime
}

type ProcessLogStore struct {
	db *sql.DB
}

func newProcessLogStore(db *sql.DB) (*ProcessLogStore, error) {
	s := &ProcessLogStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("store: init process_logs schema: %w", err)
	}
	return s, nil
}

func (s *ProcessLogStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS process_logs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		entries_json TEXT NOT NULL DEFAULT '[]',
		sealed INTEGER NOT NULL DEFAULT 0,
		final_verdict TEXT NOT NULL DEFAULT '',
		documents_cited TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		sealed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_process_logs_owner ON process_logs(owner_id);
	CREATE INDEX IF NOT EXISTS idx_process_logs_created ON process_logs(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *ProcessLogStore) Create(ctx context.Context, id, ownerID, queryText string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO process_logs (id, owner_id, query_text) VALUES (?, ?, ?)", id, ownerID, queryText)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.processlogs", err, "create process log")
	}
	return nil
}

// AppendEntries overwrites the entries_json blob with the caller's
// up-to-date serialization. The Process Logger in internal/audit owns
// the in-memory append; the store only persists snapshots, matching the
// teacher's write-whole-blob-on-update pattern used for rules caches.
func (s *ProcessLogStore) AppendEntries(ctx context.Context, id, entriesJSON string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE process_logs SET entries_json = ? WHERE id = ? AND sealed = 0", entriesJSON, id)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.processlogs", err, "append entries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Transient, "store.processlogs", err, "rows affected")
	}
	if n == 0 {
		return errs.New(errs.Validation, "store.processlogs", "process log %s is sealed or missing", id)
	}
	return nil
}

// Seal finalizes a process log with its verdict and cited documents. A
// sealed log is immutable (§4.12 — audit integrity).
func (s *ProcessLogStore) Seal(ctx context.Context, id, verdict string, documentsCitedJSON string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_logs SET sealed = 1, final_verdict = ?, documents_cited = ?, sealed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND sealed = 0`, verdict, documentsCitedJSON, id)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.processlogs", err, "seal process log")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Transient, "store.processlogs", err, "rows affected")
	}
	if n == 0 {
		return errs.New(errs.Validation, "store.processlogs", "process log %s already sealed or missing", id)
	}
	return nil
}

func (s *ProcessLogStore) Get(ctx context.Context, id string) (*ProcessLog, error) {
	var p ProcessLog
	var sealed int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, query_text, entries_json, sealed, final_verdict, documents_cited, created_at, sealed_at
		FROM process_logs WHERE id = ?`, id,
	).Scan(&p.ID, &p.OwnerID, &p.QueryText, &p.EntriesJSON, &sealed, &p.FinalVerdict, &p.DocumentsCitedJSON, &p.CreatedAt, &p.SealedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("store.processlogs", "process log not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.processlogs", err, "get process log")
	}
	p.Sealed = sealed != 0
	return &p, nil
}

// ListRecent returns the most recent process logs for an owner, newest
// first, mirroring the teacher's GetRecentLogs pagination-by-limit style.
func (s *ProcessLogStore) ListRecent(ctx context.Context, ownerID string, limit int) ([]*ProcessLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, query_text, entries_json, sealed, final_verdict, documents_cited, created_at, sealed_at
		FROM process_logs WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.processlogs", err, "list process logs")
	}
	defer rows.Close()

	var logs []*ProcessLog
	for rows.Next() {
		var p ProcessLog
		var sealed int
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.QueryText, &p.EntriesJSON, &sealed, &p.FinalVerdict, &p.DocumentsCitedJSON, &p.CreatedAt, &p.SealedAt); err != nil {
			return nil, errs.Wrap(errs.Transient, "store.processlogs", err, "scan process log")
		}
		p.Sealed = sealed != 0
		logs = append(logs, &p)
	}
	return logs, rows.Err()
}
