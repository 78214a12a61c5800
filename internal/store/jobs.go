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

// JobState is the ingestion job's lifecycle state (§4.8 — distinct from a
// single document's ProcessingStatus, since one job may cover many
// documents submitted together).
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobComplete  JobState = "complete"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Job tracks one ingestion submission's overall progress and supports
// cooperative cancellation (§4.8, §5).
type Job struct {
	ID              string
	OwnerID         string
	IdempotencyKey  string
	State           JobState
	TotalDocuments  int
	DoneDocuments   int
	FailedDocuments int
	CancelRequested bool
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type JobStore struct {
	db *sql.DB
}

func newJobStore(db *sql.DB) (*JobStore, error) {
	s := &JobStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("store: init processing_jobs schema: %w", err)
	}
	return s, nil
}

func (s *JobStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS processing_jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		idempotency_key TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'queued',
		total_documents INTEGER NOT NULL DEFAULT 0,
		done_documents INTEGER NOT NULL DEFAULT 0,
		failed_documents INTEGER NOT NULL DEFAULT 0,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_processing_jobs_owner ON processing_jobs(owner_id);
	CREATE INDEX IF NOT EXISTS idx_processing_jobs_state ON processing_jobs(state);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_processing_jobs_idempotency
		ON processing_jobs(owner_id, idempotency_key) WHERE idempotency_key != '';
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *JobStore) Create(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, owner_id, idempotency_key, state, total_documents)
		VALUES (?, ?, ?, ?, ?)`, j.ID, j.OwnerID, j.IdempotencyKey, string(JobQueued), j.TotalDocuments)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.jobs", err, "create job")
	}
	return nil
}

// FindByIdempotencyKey returns the job previously created for (ownerID,
// key), if any, so Submit can return it instead of re-enqueuing (§8 —
// submit with the same idempotency key returns the same job id without
// duplicating work).
func (s *JobStore) FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*Job, error) {
	if key == "" {
		return nil, errs.NotFoundf("store.jobs", "no idempotency key supplied")
	}
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM processing_jobs WHERE owner_id = ? AND idempotency_key = ?", ownerID, key,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("store.jobs", "no job for idempotency key")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.jobs", err, "find job by idempotency key")
	}
	return s.Get(ctx, id)
}

func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	var state string
	var cancel int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, state, total_documents, done_documents, failed_documents,
			cancel_requested, error_message, created_at, updated_at
		FROM processing_jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.OwnerID, &state, &j.TotalDocuments, &j.DoneDocuments, &j.FailedDocuments,
		&cancel, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("store.jobs", "job not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.jobs", err, "get job")
	}
	j.State = JobState(state)
	j.CancelRequested = cancel != 0
	return &j, nil
}

// MarkRunning transitions a queued job to running.
func (s *JobStore) MarkRunning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE processing_jobs SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(JobRunning), id)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.jobs", err, "mark running")
	}
	return nil
}

// RecordDocumentDone increments progress counters after one document in
// the job finishes (successfully or not), and advances the job to its
// terminal state once every document has reported.
func (s *JobStore) RecordDocumentDone(ctx context.Context, id string, failed bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.jobs", err, "begin tx")
	}
	defer tx.Rollback()

	col := "done_documents"
	if failed {
		col = "failed_documents"
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE processing_jobs SET %s = %s + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?", col, col), id,
	); err != nil {
		return errs.Wrap(errs.Transient, "store.jobs", err, "increment progress")
	}

	var total, done, fail int
	var cancelled int
	if err := tx.QueryRowContext(ctx,
		"SELECT total_documents, done_documents, failed_documents, cancel_requested FROM processing_jobs WHERE id = ?", id,
	).Scan(&total, &done, &fail, &cancelled); err != nil {
		return errs.Wrap(errs.Transient, "store.jobs", err, "read progress")
	}

	if done+fail >= total {
		// Per-document failures never fail the job (§4.8) — JobFailed is
		// reserved for infrastructure faults raised explicitly via Fail.
		state := JobComplete
		if cancelled != 0 {
			state = JobCancelled
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE processing_jobs SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(state), id,
		); err != nil {
			return errs.Wrap(errs.Transient, "store.jobs", err, "finalize job")
		}
	}
	return tx.Commit()
}

// RequestCancel sets the cooperative-cancellation flag a running worker
// polls (§5).
func (s *JobStore) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE processing_jobs SET cancel_requested = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.jobs", err, "request cancel")
	}
	return checkRowsAffected(res, "store.jobs", id)
}

func (s *JobStore) Fail(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE processing_jobs SET state = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(JobFailed), message, id)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.jobs", err, "fail job")
	}
	return nil
}
