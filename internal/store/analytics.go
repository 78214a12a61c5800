// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"

	"github.com/northbound/hiverag/internal/errs"
)

// AnalyticsStore answers the small set of aggregate counters the
// `database` tool (internal/tools) is allowed to query (§3 "analytics
// counters"). Queries are a fixed safelist rather than caller-supplied SQL,
// so the structured-data tool can never become an injection surface.
type AnalyticsStore struct {
	db *sql.DB
}

func newAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// DocumentCountByStatus returns how many of ownerID's documents are in
// each processing status.
func (a *AnalyticsStore) DocumentCountByStatus(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM documents WHERE owner_id = ? GROUP BY status", ownerID)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.analytics", err, "count documents by status")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errs.Wrap(errs.Transient, "store.analytics", err, "scan status count")
		}
		out[status] = n
	}
	return out, rows.Err()
}

// ChunkCountByDocument returns the number of chunks stored for documentID,
// used to sanity-check ingestion completeness (§8 invariant).
func (a *AnalyticsStore) ChunkCountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&n)
	if err != nil {
		return 0, errs.Wrap(errs.Transient, "store.analytics", err, "count chunks")
	}
	return n, nil
}

// TotalDocuments returns how many documents ownerID owns, across every
// status.
func (a *AnalyticsStore) TotalDocuments(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE owner_id = ?", ownerID).Scan(&n)
	if err != nil {
		return 0, errs.Wrap(errs.Transient, "store.analytics", err, "count documents")
	}
	return n, nil
}
