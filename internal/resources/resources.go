// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package resources implements the Resource Manager (§4.1): pooled,
// cancellable handles to the relational store, vector index, LLM client,
// and blob storage, shared by the ingestion and query paths. It
// generalizes the inline construct-with-mock-fallback wiring the teacher's
// cmd/hive-server/main.go did ad hoc into an explicit Acquire/Health/
// Shutdown surface with a configurable pool size and acquisition timeout.
// An idle TTL is accepted in Config but not applied (see Config).
package resources

import (
	"context"
	"sync"
	"time"

	"github.com/northbound/hiverag/internal/blobstore"
	"github.com/northbound/hiverag/internal/errs"
	"github.com/northbound/hiverag/internal/llm"
	"github.com/northbound/hiverag/internal/store"
	"github.com/northbound/hiverag/internal/vectorindex"
)

// Kind names one of the handle types the Manager pools.
type Kind string

const (
	KindStore  Kind = "store"
	KindIndex  Kind = "vector_index"
	KindLLM    Kind = "llm"
	KindBlob   Kind = "blob"
)

// Status is a single kind's last observed health.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
	StatusShutdown  Status = "shutdown"
)

// Config controls pool sizing and acquisition behavior (§6 resource.*).
// IdleTTL is defaulted and stored but nothing reads it: the Manager wraps
// long-lived shared handles and never expires or recreates one.
type Config struct {
	PoolSize         int
	AcquireTimeout   time.Duration
	IdleTTL          time.Duration
}

// Handle is a single acquired resource of a given Kind. Release must be
// called exactly once on every code path, including error returns —
// callers typically `defer h.Release()` immediately after Acquire.
type Handle struct {
	Kind     Kind
	Store    *store.Store
	Index    vectorindex.Index
	LLM      llm.Client
	Embedder llm.Embedder
	Blob     blobstore.ObjectStore

	release func()
}

// Release returns the handle to its pool. Safe to call more than once.
func (h *Handle) Release() {
	if h.release != nil {
		h.release()
		h.release = nil
	}
}

// Manager pools the four handle kinds behind acquire/release semantics
// with a shared semaphore per kind, so a slow caller cannot starve every
// other caller of the same resource (§4.1, §5 — connection pools are the
// only mutable shared state).
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	shutdown bool

	store    *store.Store
	index    vectorindex.Index
	llmC     llm.Client
	embedder llm.Embedder
	blob     blobstore.ObjectStore

	sems map[Kind]chan struct{}
}

// New constructs a Manager wrapping already-open singleton handles. Each
// kind's pool admits at most cfg.PoolSize concurrent acquisitions; the
// handles themselves (sqlite *Store, the qdrant Index, etc.) are already
// safe for concurrent use, so the semaphore bounds caller concurrency
// rather than gating access to a literal connection-per-slot. The chat
// Client and the Embedder share the KindLLM pool since both are calls
// against the same external LLM service boundary.
func New(cfg Config, st *store.Store, idx vectorindex.Index, llmClient llm.Client, embedder llm.Embedder, blob blobstore.ObjectStore) *Manager {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 16
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}

	m := &Manager{
		cfg:      cfg,
		store:    st,
		index:    idx,
		llmC:     llmClient,
		embedder: embedder,
		blob:     blob,
		sems:     make(map[Kind]chan struct{}, 4),
	}
	for _, k := range []Kind{KindStore, KindIndex, KindLLM, KindBlob} {
		m.sems[k] = make(chan struct{}, cfg.PoolSize)
	}
	return m
}

// Acquire blocks until a slot for kind is free or ctx/the configured
// timeout expires, returning a Handle whose Release returns the slot.
// During drain (after Shutdown), Acquire fails immediately with a
// Fatal-kind errs error; a pool still full when the timeout expires yields
// a Transient-kind errs error.
func (m *Manager) Acquire(ctx context.Context, kind Kind) (*Handle, error) {
	m.mu.RLock()
	down := m.shutdown
	m.mu.RUnlock()
	if down {
		return nil, errs.New(errs.Fatal, "resources", "resource manager is shut down")
	}

	sem, ok := m.sems[kind]
	if !ok {
		return nil, errs.Validationf("resources", "kind", "unknown resource kind %q", kind)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	select {
	case sem <- struct{}{}:
	case <-acquireCtx.Done():
		return nil, errs.New(errs.Transient, "resources", "acquire %s: pool exhausted after %s", kind, m.cfg.AcquireTimeout)
	}

	var released sync.Once
	release := func() {
		released.Do(func() { <-sem })
	}

	h := &Handle{Kind: kind, release: release}
	switch kind {
	case KindStore:
		h.Store = m.store
	case KindIndex:
		h.Index = m.index
	case KindLLM:
		h.LLM = m.llmC
		h.Embedder = m.embedder
	case KindBlob:
		h.Blob = m.blob
	}
	return h, nil
}

// Health reports each kind's best-effort status. A nil store reports
// unknown; a nil index or blob store, or a missing LLM client or embedder
// (e.g. no qdrant connection configured), reports degraded, not healthy.
func (m *Manager) Health(ctx context.Context) map[Kind]Status {
	out := make(map[Kind]Status, 4)

	m.mu.RLock()
	down := m.shutdown
	m.mu.RUnlock()
	if down {
		for _, k := range []Kind{KindStore, KindIndex, KindLLM, KindBlob} {
			out[k] = StatusShutdown
		}
		return out
	}

	out[KindStore] = StatusUnknown
	if m.store != nil {
		if err := m.store.DB().PingContext(ctx); err != nil {
			out[KindStore] = StatusDegraded
		} else {
			out[KindStore] = StatusHealthy
		}
	}

	out[KindIndex] = StatusDegraded
	if m.index != nil {
		if _, err := m.index.Count(ctx); err == nil {
			out[KindIndex] = StatusHealthy
		}
	}

	out[KindLLM] = StatusDegraded
	if m.llmC != nil && m.embedder != nil {
		out[KindLLM] = StatusHealthy
	}

	out[KindBlob] = StatusDegraded
	if m.blob != nil {
		out[KindBlob] = StatusHealthy
	}
	return out
}

// Shutdown stops admitting new acquisitions and waits up to deadline for
// every outstanding handle across all kinds to Release, then returns.
// Callers that ignore the deadline exceeded signal risk leaking goroutines
// blocked on a handle that is never coming back; the CLI entry point
// treats this as exit code 3 (§6).
func (m *Manager) Shutdown(ctx context.Context, deadline time.Duration) error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for kind, sem := range m.sems {
		for i := 0; i < cap(sem); i++ {
			select {
			case sem <- struct{}{}:
			case <-drainCtx.Done():
				return errs.New(errs.Timeout, "resources", "shutdown: %s did not drain within %s", kind, deadline)
			}
		}
	}
	return nil
}
