// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingestion

import (
	"context"
	"sync"

	"github.com/northbound/hiverag/internal/logger"
)

// HandlerFunc processes one DocumentJob. An error here marks that
// document failed within its parent processing_jobs record; it never
// stops the worker pool.
type HandlerFunc func(ctx context.Context, job DocumentJob) error

// StartWorkers runs workerCount goroutines pulling from q until ctx is
// cancelled, generalizing the teacher's worker pool from a generic
// queue.Job to DocumentJob.
func StartWorkers(ctx context.Context, q Queue, handler HandlerFunc, workerCount int) {
	if workerCount <= 0 {
		workerCount = 4
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		workerID := i + 1
		go func() {
			defer wg.Done()
			workerLoop(ctx, q, handler, workerID)
		}()
	}
	wg.Wait()
}

func workerLoop(ctx context.Context, q Queue, handler HandlerFunc, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("ingestion: worker %d dequeue error: %v", workerID, err)
			continue
		}

		if err := handler(ctx, job); err != nil {
			logger.Warnf("ingestion: worker %d job %s/%s failed: %v", workerID, job.JobID, job.DocumentID, err)
			continue
		}
	}
}
