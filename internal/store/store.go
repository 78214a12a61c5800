// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package store is the relational Document Store: documents, their chunks,
// permission grants, conversations, processing jobs, and process logs, each
// owning its own schema the way internal/database's tables did in the
// teacher repo.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/northbound/hiverag/internal/access"
	_ "github.com/mattn/go-sqlite3"
)

// Store aggregates the per-concern sub-stores over a single *sql.DB. The
// Resource Manager hands the one *Store out through its KindStore pool;
// DB exposes the *sql.DB for the few callers that need it directly.
type Store struct {
	db *sql.DB

	Documents     *DocumentStore
	Chunks        *ChunkStore
	Permissions   *PermissionStore
	Conversations *ConversationStore
	Jobs          *JobStore
	ProcessLogs   *ProcessLogStore
	Analytics     *AnalyticsStore
}

// Open opens (creating if absent) the sqlite database at driverPath and
// initializes every sub-store's schema.
func Open(driverPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", driverPath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	return New(db)
}

// New wraps an already-open *sql.DB, initializing every sub-store's schema.
// Used directly by tests against sql.Open("sqlite3", ":memory:").
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}

	var err error
	if s.Documents, err = newDocumentStore(db); err != nil {
		return nil, err
	}
	if s.Chunks, err = newChunkStore(db); err != nil {
		return nil, err
	}
	if s.Permissions, err = newPermissionStore(db); err != nil {
		return nil, err
	}
	if s.Conversations, err = newConversationStore(db); err != nil {
		return nil, err
	}
	if s.Jobs, err = newJobStore(db); err != nil {
		return nil, err
	}
	if s.ProcessLogs, err = newProcessLogStore(db); err != nil {
		return nil, err
	}
	s.Analytics = newAnalyticsStore(db)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components (e.g. transactional
// multi-store writes) that need it directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

// DocumentMeta satisfies access.DocumentLookup, joining a document's
// owner/visibility with its live grant set in two round trips.
func (s *Store) DocumentMeta(ctx context.Context, documentID string) (access.DocumentMeta, error) {
	doc, err := s.Documents.Get(ctx, documentID)
	if err != nil {
		return access.DocumentMeta{}, err
	}
	grants, err := s.Permissions.ListForDocument(ctx, documentID)
	if err != nil {
		return access.DocumentMeta{}, err
	}
	return access.DocumentMeta{ID: doc.ID, OwnerID: doc.OwnerID, Visibility: doc.Visibility, Grants: grants}, nil
}
