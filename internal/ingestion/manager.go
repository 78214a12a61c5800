// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingestion

import (
	"bytes"
	"context"

	"github.com/google/uuid"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/blobstore"
	"github.com/northbound/hiverag/internal/errs"
	"github.com/northbound/hiverag/internal/resources"
	"github.com/northbound/hiverag/internal/store"
)

// Upload is one file submitted as part of an ingestion request.
type Upload struct {
	Filename   string
	Data       []byte
	FolderPath string
	Tags       []string
	Visibility access.Visibility
}

// Manager is the ingestion API's entry point (§6): it stages blobs,
// creates Document and Job rows, and enqueues one DocumentJob per file.
// Store and blob access both go through the Resource Manager rather than
// holding direct handles, so a burst of submissions is bounded by the
// same pools the ingestion workers and query path share (§4.1, §5).
type Manager struct {
	resMgr *resources.Manager
	queue  Queue
}

func NewManager(resMgr *resources.Manager, q Queue) *Manager {
	return &Manager{resMgr: resMgr, queue: q}
}

// Submit stages every upload's bytes, creates its Document row and a
// parent processing_jobs row, then enqueues each document for a worker.
// When idempotencyKey is non-empty and a job was already created for
// (ownerID, idempotencyKey), that job's id is returned unchanged and no
// new work is enqueued (§8).
func (m *Manager) Submit(ctx context.Context, ownerID, idempotencyKey string, uploads []Upload) (string, error) {
	if len(uploads) == 0 {
		return "", errs.Validationf("ingestion.manager", "documents", "at least one file is required")
	}

	storeH, err := m.resMgr.Acquire(ctx, resources.KindStore)
	if err != nil {
		return "", err
	}
	defer storeH.Release()
	st := storeH.Store

	if idempotencyKey != "" {
		if existing, err := st.Jobs.FindByIdempotencyKey(ctx, ownerID, idempotencyKey); err == nil {
			return existing.ID, nil
		}
	}

	jobID := uuid.NewString()
	if err := st.Jobs.Create(ctx, &store.Job{ID: jobID, OwnerID: ownerID, IdempotencyKey: idempotencyKey, TotalDocuments: len(uploads)}); err != nil {
		return "", err
	}

	blobH, err := m.resMgr.Acquire(ctx, resources.KindBlob)
	if err != nil {
		return "", err
	}
	defer blobH.Release()

	for _, u := range uploads {
		documentID := uuid.NewString()
		visibility := u.Visibility
		if visibility == "" {
			visibility = access.VisibilityPrivate
		}

		blobKey := blobstore.DocumentKey(ownerID, documentID, u.Filename)
		if _, err := blobH.Blob.Put(ctx, blobKey, bytes.NewReader(u.Data)); err != nil {
			return "", errs.Wrap(errs.Transient, "ingestion.manager", err, "stage blob")
		}

		doc := &store.Document{
			ID:         documentID,
			OwnerID:    ownerID,
			Filename:   u.Filename,
			FolderPath: u.FolderPath,
			Tags:       u.Tags,
			Metadata:   map[string]string{},
			Visibility: visibility,
		}
		if err := st.Documents.Create(ctx, doc); err != nil {
			return "", err
		}

		if err := m.queue.Enqueue(ctx, DocumentJob{
			JobID:      jobID,
			DocumentID: documentID,
			OwnerID:    ownerID,
			BlobKey:    blobKey,
			Filename:   u.Filename,
		}); err != nil {
			return "", errs.Wrap(errs.Transient, "ingestion.manager", err, "enqueue document job")
		}
	}

	if err := st.Jobs.MarkRunning(ctx, jobID); err != nil {
		return "", err
	}
	return jobID, nil
}

// Status reports a job's current progress (§6 job_status).
func (m *Manager) Status(ctx context.Context, jobID string) (*store.Job, error) {
	h, err := m.resMgr.Acquire(ctx, resources.KindStore)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.Store.Jobs.Get(ctx, jobID)
}

// Cancel requests cooperative cancellation; in-flight documents finish
// their current pipeline stage and later documents are skipped at the
// per-document boundary (§5).
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	h, err := m.resMgr.Acquire(ctx, resources.KindStore)
	if err != nil {
		return err
	}
	defer h.Release()
	return h.Store.Jobs.RequestCancel(ctx, jobID)
}
