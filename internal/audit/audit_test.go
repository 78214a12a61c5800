// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package audit

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/northbound/hiverag/internal/store"
)

func newTestProcessLogStore(t *testing.T) *store.ProcessLogStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st, err := store.New(db)
	require.NoError(t, err)
	return st.ProcessLogs
}

func TestRecorder_AppendAndFinalize(t *testing.T) {
	logs := newTestProcessLogStore(t)
	ctx := context.Background()

	rec, err := NewRecorder(ctx, logs, "log-1", "alice", "what is in doc X?")
	require.NoError(t, err)

	require.NoError(t, rec.Append(ctx, StageAnalysis, map[string]string{"complexity": "simple"}))
	require.NoError(t, rec.Append(ctx, StagePlanning, map[string]string{"steps": "2"}))

	sources := []Source{{DocumentID: "doc-1", ChunkID: "chunk-1", Filename: "doc-1.txt", Excerpt: "hello", Score: 0.9}}
	report, err := rec.Finalize(ctx, sources, 9.0, 7.0)
	require.NoError(t, err)

	require.Equal(t, "log-1", report.ProcessLogID)
	require.Equal(t, VerificationVerified, report.VerificationStatus)
	require.Equal(t, sources, report.Sources)
	// analysis, planning, finalization
	require.Len(t, report.ReasoningTrace, 3)
}

func TestRecorder_Finalize_UncertainBand(t *testing.T) {
	logs := newTestProcessLogStore(t)
	ctx := context.Background()
	rec, err := NewRecorder(ctx, logs, "log-2", "alice", "q")
	require.NoError(t, err)

	report, err := rec.Finalize(ctx, nil, 6.0, 7.0)
	require.NoError(t, err)
	require.Equal(t, VerificationPartial, report.VerificationStatus)
}

func TestRecorder_Finalize_Unverified(t *testing.T) {
	logs := newTestProcessLogStore(t)
	ctx := context.Background()
	rec, err := NewRecorder(ctx, logs, "log-3", "alice", "q")
	require.NoError(t, err)

	report, err := rec.Finalize(ctx, nil, 2.0, 7.0)
	require.NoError(t, err)
	require.Equal(t, VerificationNotVerified, report.VerificationStatus)
}

func TestGet_RoundTripsSealedReport(t *testing.T) {
	logs := newTestProcessLogStore(t)
	ctx := context.Background()
	rec, err := NewRecorder(ctx, logs, "log-4", "alice", "q")
	require.NoError(t, err)

	sources := []Source{{DocumentID: "doc-1", ChunkID: "chunk-1", Filename: "f.txt", Excerpt: "x", Score: 0.5}}
	_, err = rec.Finalize(ctx, sources, 9.0, 7.0)
	require.NoError(t, err)

	report, err := Get(ctx, logs, "log-4")
	require.NoError(t, err)
	require.Equal(t, VerificationVerified, report.VerificationStatus)
	require.Equal(t, sources, report.Sources)
	require.Equal(t, 9.0, report.HallucinationAssessment)
}

func TestVerificationStatus_Buckets(t *testing.T) {
	require.Equal(t, VerificationVerified, verificationStatus(8, 8))
	require.Equal(t, VerificationPartial, verificationStatus(7, 8))
	require.Equal(t, VerificationNotVerified, verificationStatus(5, 8))
}
