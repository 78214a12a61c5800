// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/audit"
	"github.com/northbound/hiverag/internal/errs"
	"github.com/northbound/hiverag/internal/executor"
	"github.com/northbound/hiverag/internal/ingestion"
	"github.com/northbound/hiverag/internal/resources"
	"github.com/northbound/hiverag/internal/store"
	"github.com/northbound/hiverag/internal/synth"
	"github.com/northbound/hiverag/internal/tools"
)

// registerHandlers wires the §6 Ingestion and Query APIs onto thin JSON
// handlers. Routing itself stays minimal (ServeMux path matching only) —
// the handlers marshal JSON and call straight into the engine, the way
// cmd/hive-server's handlers called straight into its server package.
func registerHandlers(mux *http.ServeMux, eng *engine) {
	mux.HandleFunc("/v1/ingest/submit", eng.handleSubmit)
	mux.HandleFunc("/v1/ingest/status", eng.handleJobStatus)
	mux.HandleFunc("/v1/ingest/cancel", eng.handleCancel)
	mux.HandleFunc("/v1/query", eng.handleQuery)
	mux.HandleFunc("/v1/audit_report", eng.handleAuditReport)
	mux.HandleFunc("/v1/health", eng.handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.Validation, errs.SchemaViolation:
		status = http.StatusBadRequest
	case errs.NotAuthorized:
		status = http.StatusForbidden
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.Timeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": errs.UserMessage(err)})
}

type submitUpload struct {
	Filename   string   `json:"filename"`
	DataBase64 string   `json:"bytes"` // base64-encoded file contents
	Visibility string   `json:"visibility"`
	Tags       []string `json:"tags"`
	Folder     string   `json:"folder"`
}

type submitRequest struct {
	OwnerID        string         `json:"owner_id"`
	IdempotencyKey string         `json:"idempotency_key"`
	Documents      []submitUpload `json:"documents"`
}

func (e *engine) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.Validation, "http.submit", err, "decode request"))
		return
	}

	uploads := make([]ingestion.Upload, 0, len(req.Documents))
	for _, d := range req.Documents {
		data, err := base64.StdEncoding.DecodeString(d.DataBase64)
		if err != nil {
			writeError(w, errs.Wrap(errs.Validation, "http.submit", err, "decode file %s", d.Filename))
			return
		}
		uploads = append(uploads, ingestion.Upload{
			Filename: d.Filename, Data: data, FolderPath: d.Folder, Tags: d.Tags,
			Visibility: access.Visibility(d.Visibility),
		})
	}

	jobID, err := e.ingestMgr.Submit(r.Context(), req.OwnerID, req.IdempotencyKey, uploads)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

func (e *engine) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	job, err := e.ingestMgr.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	// Job progress is tracked at the whole-job granularity (§4.8); no
	// per-document sub-resource exists to report per_doc detail from.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    job.State,
		"processed": job.DoneDocuments,
		"failed":    job.FailedDocuments,
		"total":     job.TotalDocuments,
		"error":     job.ErrorMessage,
	})
}

func (e *engine) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if err := e.ingestMgr.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

type queryRequest struct {
	UserID         string `json:"user_id"`
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id"`
	TopK           int    `json:"top_k"`
	DeadlineMS     int    `json:"deadline_ms"`
}

func (e *engine) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.Validation, "http.query", err, "decode request"))
		return
	}
	if req.Text == "" {
		writeError(w, errs.Validationf("http.query", "text", "text is required"))
		return
	}

	deadlineMS := req.DeadlineMS
	if deadlineMS <= 0 {
		deadlineMS = e.cfg.Deadlines.QueryMS
	}
	queryDeadline := time.Now().Add(time.Duration(deadlineMS) * time.Millisecond)
	ctx, cancel := context.WithDeadline(r.Context(), queryDeadline)
	defer cancel()

	storeH, err := e.resourceMgr.Acquire(ctx, resources.KindStore)
	if err != nil {
		writeError(w, err)
		return
	}
	defer storeH.Release()
	st := storeH.Store

	history := ""
	if req.ConversationID != "" {
		msgs, err := st.Conversations.History(ctx, req.ConversationID, 20)
		if err == nil {
			history = renderHistory(msgs)
		}
	}

	requestID := uuid.NewString()
	processLogID := uuid.NewString()
	rec, err := audit.NewRecorder(ctx, st.ProcessLogs, processLogID, req.UserID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	defer e.accessSvc.ReleaseRequest(requestID)

	analysis := e.planner.Analyze(ctx, req.Text, history)
	_ = rec.Append(ctx, audit.StageAnalysis, analysis)

	allowed := map[string]bool{}
	for _, name := range e.registry.Names() {
		allowed[name] = true
	}
	plan, err := e.planner.Plan(ctx, req.Text, analysis, allowed)
	if err != nil {
		sealUnknown(w, ctx, rec, nil, "planning")
		return
	}
	_ = rec.Append(ctx, audit.StagePlanning, plan)

	ec := tools.ExecContext{UserID: req.UserID, RequestID: requestID, Deadline: queryDeadline}
	steps, finalOut, err := e.execFn.Run(ctx, plan, ec, queryDeadline, history)
	for _, s := range steps {
		_ = rec.Append(ctx, audit.StageStepExec, map[string]interface{}{
			"index": s.Index, "tool": s.Tool, "error": errString(s.Err),
		})
	}
	if err != nil {
		// The step trace recorded above still carries every tool that did
		// run, so the sealed report cites whatever was retrieved even
		// though synthesis never completed (§7 — fatal failure still seals
		// a report, verification_status=unknown, with the failing stage).
		sealUnknown(w, ctx, rec, sourcesFromSteps(steps), "synthesis")
		return
	}
	_ = rec.Append(ctx, audit.StageSynthesis, map[string]interface{}{"text": toString(finalOut["text"])})

	answerText := toString(finalOut["text"])
	sources := sourcesFromSteps(steps)

	var hallucination float64
	if evalVal, ok := finalOut["evaluation"]; ok {
		hallucination = hallucinationFromEvaluation(evalVal)
	}
	_ = rec.Append(ctx, audit.StageEvaluation, map[string]interface{}{"hallucination": hallucination})

	report, err := rec.Finalize(ctx, sources, hallucination, e.cfg.Response.HallucinationThreshold)
	if err != nil {
		sealUnknown(w, ctx, rec, sources, "finalization")
		return
	}

	if req.ConversationID != "" {
		_ = st.Conversations.AppendMessage(ctx, &store.Message{
			ID: uuid.NewString(), ConversationID: req.ConversationID, Role: store.RoleUser, Content: req.Text,
		})
		_ = st.Conversations.AppendMessage(ctx, &store.Message{
			ID: uuid.NewString(), ConversationID: req.ConversationID, Role: store.RoleAssistant, Content: answerText,
			ProcessLogID: processLogID,
		})
	}

	citations := make([]map[string]interface{}, 0, len(sources))
	for _, s := range sources {
		citations = append(citations, map[string]interface{}{
			"doc_id": s.DocumentID, "chunk_id": s.ChunkID, "excerpt": s.Excerpt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"answer":          answerText,
		"citations":       citations,
		"audit_report_id": report.ProcessLogID,
	})
}

// sealUnknown seals the in-flight process log with verification_status=unknown
// after a fatal failure at failedStage and still answers the request with a
// terse, non-leaking explanation plus the sealed report's id (§7 — the query
// API always returns a sealed audit report id, even on hard failure). Only
// when sealing itself fails does the response fall back to a bare error with
// no audit_report_id, since no report exists to point to at that point.
func sealUnknown(w http.ResponseWriter, ctx context.Context, rec *audit.Recorder, sources []audit.Source, failedStage string) {
	report, err := rec.FinalizeUnknown(ctx, sources, failedStage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"answer":          "The request could not be completed due to an internal error.",
		"citations":       []map[string]interface{}{},
		"audit_report_id": report.ProcessLogID,
	})
}

func (e *engine) handleAuditReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get("report_id")

	storeH, err := e.resourceMgr.Acquire(ctx, resources.KindStore)
	if err != nil {
		writeError(w, err)
		return
	}
	defer storeH.Release()

	report, err := audit.Get(ctx, storeH.Store.ProcessLogs, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleHealth surfaces the Resource Manager's per-kind status as a
// readiness check; any kind reporting degraded or shutdown drops the
// overall HTTP status to 503 so a load balancer stops routing here.
func (e *engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := e.resourceMgr.Health(r.Context())
	out := make(map[string]string, len(statuses))
	ok := true
	for kind, status := range statuses {
		out[string(kind)] = string(status)
		if status != resources.StatusHealthy {
			ok = false
		}
	}
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": out})
}

// sourcesFromSteps extracts every chunk a rag-tool step cited into the
// audit Source shape Finalize expects.
func sourcesFromSteps(steps []executor.StepResult) []audit.Source {
	var sources []audit.Source
	for _, s := range steps {
		if s.Tool != "rag" || s.Output == nil {
			continue
		}
		chunks, _ := s.Output["chunks"].([]map[string]interface{})
		for _, c := range chunks {
			score, _ := c["score"].(float32)
			sources = append(sources, audit.Source{
				DocumentID: toString(c["document_id"]),
				ChunkID:    toString(c["chunk_id"]),
				Filename:   toString(c["filename"]),
				Excerpt:    toString(c["content"]),
				Score:      score,
			})
		}
	}
	return sources
}

// hallucinationFromEvaluation reads the Hallucination score off the
// synth.Evaluation struct newSynthesizeFunc stashed under "evaluation" —
// it's a concrete struct, not a decoded map, since it never round-trips
// through JSON before reaching here.
func hallucinationFromEvaluation(v interface{}) float64 {
	e, ok := v.(synth.Evaluation)
	if !ok {
		return 0
	}
	return e.Hallucination
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func renderHistory(msgs []*store.Message) string {
	s := ""
	for _, m := range msgs {
		s += string(m.Role) + ": " + m.Content + "\n"
	}
	return s
}
