// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package ingestion is the adaptive ingestion pipeline (§4.8): a
// Redis-backed job queue, a bounded worker pool, and a per-document
// pipeline that routes text through the Chunking Judge, a Splitter, the
// LLM embedder, and the Document Store + Vector Index.
package ingestion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/hiverag/internal/errs"
)

// DocumentJob is one unit of ingestion work: one document within a larger
// processing_jobs submission.
type DocumentJob struct {
	JobID      string    `json:"job_id"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	BlobKey    string    `json:"blob_key"`
	Filename   string    `json:"filename"`
	CreatedAt  time.Time `json:"created_at"`
}

// Queue dequeues/enqueues DocumentJobs. Implementations must block in
// Dequeue until work is available or ctx is cancelled.
type Queue interface {
	Enqueue(ctx context.Context, job DocumentJob) error
	Dequeue(ctx context.Context) (DocumentJob, error)
}

// RedisQueue implements Queue over a Redis list, generalizing the
// teacher's RPUSH/BLPOP job queue from a generic queue.Job envelope to
// the ingestion pipeline's DocumentJob.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) (*RedisQueue, error) {
	if key == "" {
		key = "hiverag:ingestion"
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errs.Wrap(errs.Transient, "ingestion.queue", err, "ping redis")
	}
	return &RedisQueue{client: client, key: key}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job DocumentJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errs.Wrap(errs.Validation, "ingestion.queue", err, "marshal job")
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return errs.Wrap(errs.Transient, "ingestion.queue", err, "rpush")
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (DocumentJob, error) {
	type result struct {
		val []string
		err error
	}
	resultChan := make(chan result, 1)

	go func() {
		val, err := q.client.BLPop(ctx, 0, q.key).Result()
		resultChan <- result{val: val, err: err}
	}()

	select {
	case <-ctx.Done():
		return DocumentJob{}, ctx.Err()
	case res := <-resultChan:
		if res.err != nil {
			if res.err == redis.Nil {
				return DocumentJob{}, ctx.Err()
			}
			return DocumentJob{}, errs.Wrap(errs.Transient, "ingestion.queue", res.err, "blpop")
		}
		if len(res.val) < 2 {
			return DocumentJob{}, errs.New(errs.Transient, "ingestion.queue", "invalid blpop result")
		}
		var job DocumentJob
		if err := json.Unmarshal([]byte(res.val[1]), &job); err != nil {
			return DocumentJob{}, errs.Wrap(errs.Validation, "ingestion.queue", err, "unmarshal job")
		}
		return job, nil
	}
}

// MemoryQueue is an in-process Queue backed by a buffered channel, used
// when Redis is not configured (single-process / test deployments).
type MemoryQueue struct {
	ch chan DocumentJob
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{ch: make(chan DocumentJob, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job DocumentJob) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errs.New(errs.Transient, "ingestion.queue", "memory queue full")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (DocumentJob, error) {
	select {
	case job := <-q.ch:
		return job, nil
	case <-ctx.Done():
		return DocumentJob{}, ctx.Err()
	}
}
