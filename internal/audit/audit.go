// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package audit implements the Process Logger and Audit Report (§4.12): an
// append-then-seal record of every stage a query passed through, finalized
// into a report the caller can retrieve independently of the answer
// itself. Grounded on internal/store's ProcessLogStore (append/seal
// already exists there) and on the teacher's structured-logging style
// (internal/logger), generalized from a flat log line per stage to a
// typed, replayable record.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/northbound/hiverag/internal/errs"
	"github.com/northbound/hiverag/internal/store"
)

// Stage names one point in the query pipeline a Recorder can append an
// entry for.
type Stage string

const (
	StageAnalysis    Stage = "analysis"
	StagePlanning    Stage = "planning"
	StageStepExec    Stage = "step_execution"
	StageSynthesis   Stage = "synthesis"
	StageEvaluation  Stage = "evaluation"
	StageRefinement  Stage = "refinement"
	StageFinalization Stage = "finalization"
)

// Entry is one append-only record in a process log.
type Entry struct {
	Stage     Stage           `json:"stage"`
	Timestamp time.Time       `json:"timestamp"`
	Detail    json.RawMessage `json:"detail"`
}

// Source is one retrieved-and-cited chunk, surfaced in the finalized
// report so a caller can verify an answer against its evidence.
type Source struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Filename   string  `json:"filename"`
	Excerpt    string  `json:"excerpt"`
	Score      float32 `json:"score"`
}

// VerificationStatus buckets the hallucination score into a caller-facing
// verdict at configurable thresholds (§4.12, §GLOSSARY).
type VerificationStatus string

const (
	VerificationVerified    VerificationStatus = "verified"
	VerificationPartial     VerificationStatus = "partial"
	VerificationNotVerified VerificationStatus = "not_verified"
	// VerificationUnknown marks a report sealed after a fatal failure or
	// deadline timeout, where no hallucination score was ever produced
	// (§7 — fatal infrastructure aborts with verification_status=unknown).
	VerificationUnknown VerificationStatus = "unknown"
)

// Report is the finalized, sealed audit trail for one query (§4.12).
type Report struct {
	ProcessLogID           string              `json:"process_log_id"`
	Sources                []Source            `json:"sources"`
	ReasoningTrace         []Entry             `json:"reasoning_trace"`
	HallucinationAssessment float64            `json:"hallucination_assessment"`
	VerificationStatus     VerificationStatus  `json:"verification_status"`
}

// Recorder accumulates entries for one query's process log in memory and
// persists snapshots to the store, matching the append-then-seal pattern
// the store layer already exposes.
type Recorder struct {
	logs      *store.ProcessLogStore
	id        string
	ownerID   string
	queryText string
	entries   []Entry
}

// NewRecorder creates the process log row for one query and returns a
// Recorder bound to it.
func NewRecorder(ctx context.Context, logs *store.ProcessLogStore, id, ownerID, queryText string) (*Recorder, error) {
	if err := logs.Create(ctx, id, ownerID, queryText); err != nil {
		return nil, err
	}
	return &Recorder{logs: logs, id: id, ownerID: ownerID, queryText: queryText}, nil
}

// Append records one stage's entry and persists the updated log snapshot.
func (r *Recorder) Append(ctx context.Context, stage Stage, detail interface{}) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return errs.Wrap(errs.Validation, "audit", err, "marshal %s entry", stage)
	}
	r.entries = append(r.entries, Entry{Stage: stage, Timestamp: time.Now(), Detail: raw})

	entriesJSON, err := json.Marshal(r.entries)
	if err != nil {
		return errs.Wrap(errs.Validation, "audit", err, "marshal entries")
	}
	return r.logs.AppendEntries(ctx, r.id, string(entriesJSON))
}

// verificationStatus buckets a hallucination score (0-10, 10=best) into a
// VerificationStatus. Scores at or above the configured hallucination
// threshold are verified; scores 2 or more points below it are
// not_verified; everything in between is partial.
func verificationStatus(hallucinationScore, hallucinationThreshold float64) VerificationStatus {
	if hallucinationScore >= hallucinationThreshold {
		return VerificationVerified
	}
	if hallucinationScore <= hallucinationThreshold-2 {
		return VerificationNotVerified
	}
	return VerificationPartial
}

// Finalize seals the process log with the answer's sources and
// hallucination assessment, returning the caller-facing Report. A sealed
// log is immutable — Finalize must be called exactly once per query.
func (r *Recorder) Finalize(ctx context.Context, sources []Source, hallucinationScore, hallucinationThreshold float64) (*Report, error) {
	status := verificationStatus(hallucinationScore, hallucinationThreshold)

	if err := r.Append(ctx, StageFinalization, map[string]interface{}{
		"verification_status":     status,
		"hallucination_assessment": hallucinationScore,
	}); err != nil {
		return nil, err
	}

	docsJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "audit", err, "marshal sources")
	}
	if err := r.logs.Seal(ctx, r.id, string(status), string(docsJSON)); err != nil {
		return nil, err
	}

	return &Report{
		ProcessLogID:            r.id,
		Sources:                 sources,
		ReasoningTrace:          r.entries,
		HallucinationAssessment: hallucinationScore,
		VerificationStatus:      status,
	}, nil
}

// FinalizeUnknown seals the process log with verification_status=unknown
// after a fatal failure (timeout, tool-execution abort, infrastructure
// fault) that never produced a hallucination score. failedStage records
// which stage aborted the query, so the sealed report still explains
// itself without leaking internal error detail (§7 — the query API always
// returns a sealed audit report id, even on hard failure).
func (r *Recorder) FinalizeUnknown(ctx context.Context, sources []Source, failedStage string) (*Report, error) {
	if err := r.Append(ctx, StageFinalization, map[string]interface{}{
		"verification_status": VerificationUnknown,
		"failed_stage":        failedStage,
	}); err != nil {
		return nil, err
	}

	docsJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "audit", err, "marshal sources")
	}
	if err := r.logs.Seal(ctx, r.id, string(VerificationUnknown), string(docsJSON)); err != nil {
		return nil, err
	}

	return &Report{
		ProcessLogID:       r.id,
		Sources:            sources,
		ReasoningTrace:     r.entries,
		VerificationStatus: VerificationUnknown,
	}, nil
}

// Get loads a sealed (or in-progress) process log and renders it as a
// Report, for the standalone audit_report retrieval API (§6).
func Get(ctx context.Context, logs *store.ProcessLogStore, id string) (*Report, error) {
	log, err := logs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(log.EntriesJSON), &entries); err != nil {
		return nil, errs.Wrap(errs.Validation, "audit", err, "unmarshal entries")
	}
	var sources []Source
	if err := json.Unmarshal([]byte(log.DocumentsCitedJSON), &sources); err != nil {
		return nil, errs.Wrap(errs.Validation, "audit", err, "unmarshal sources")
	}

	var hallucination float64
	for _, e := range entries {
		if e.Stage != StageFinalization {
			continue
		}
		var detail struct {
			HallucinationAssessment float64 `json:"hallucination_assessment"`
		}
		_ = json.Unmarshal(e.Detail, &detail)
		hallucination = detail.HallucinationAssessment
	}

	return &Report{
		ProcessLogID:            log.ID,
		Sources:                 sources,
		ReasoningTrace:          entries,
		HallucinationAssessment: hallucination,
		VerificationStatus:      VerificationStatus(log.FinalVerdict),
	}, nil
}
