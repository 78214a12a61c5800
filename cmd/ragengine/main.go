// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/blobstore"
	"github.com/northbound/hiverag/internal/chunkjudge"
	"github.com/northbound/hiverag/internal/chunking"
	"github.com/northbound/hiverag/internal/config"
	"github.com/northbound/hiverag/internal/executor"
	"github.com/northbound/hiverag/internal/ingestion"
	"github.com/northbound/hiverag/internal/llm"
	"github.com/northbound/hiverag/internal/logger"
	"github.com/northbound/hiverag/internal/planner"
	"github.com/northbound/hiverag/internal/resources"
	"github.com/northbound/hiverag/internal/retrievaljudge"
	"github.com/northbound/hiverag/internal/store"
	"github.com/northbound/hiverag/internal/synth"
	"github.com/northbound/hiverag/internal/tools"
	"github.com/northbound/hiverag/internal/vectorindex"
)

var (
	httpAddr   = flag.String("http-addr", ":8090", "HTTP listen address")
	configPath = flag.String("config", "", "optional YAML configuration file")
	logFile    = flag.String("log-file", "ragengine.log", "log file path")
	qdrantAddr = flag.String("qdrant-addr", "localhost:6334", "Qdrant gRPC address")
)

func main() {
	os.Exit(run())
}

// run wires the engine and serves until terminated, returning the exit
// code described in §6: 0 success, 1 config error, 2 startup failure, 3
// graceful-shutdown timeout exceeded.
func run() int {
	flag.Parse()

	if _, err := logger.Init(*logFile); err != nil {
		logger.Printf("failed to initialize file logger: %v, using stdout only", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("config error: %v", err)
		return 1
	}

	eng, cleanup, err := bootstrap(cfg)
	if err != nil {
		logger.Errorf("startup failure: %v", err)
		return 2
	}
	defer cleanup()

	mux := http.NewServeMux()
	registerHandlers(mux, eng)

	srv := &http.Server{Addr: *httpAddr, Handler: mux}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	logger.Printf("ragengine listening on %s", *httpAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			return 2
		}
	case <-sigCh:
		logger.Printf("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown timed out: %v", err)
		return 3
	}
	if err := eng.resourceMgr.Shutdown(shutdownCtx, 10*time.Second); err != nil {
		logger.Errorf("resource drain timed out: %v", err)
		return 3
	}
	return 0
}

// engine holds every wired component a handler needs.
type engine struct {
	cfg          *config.Config
	resourceMgr  *resources.Manager
	st           *store.Store
	accessSvc    *access.Service
	ingestMgr    *ingestion.Manager
	planner      *planner.Planner
	registry     *tools.Registry
	execFn       *executor.Executor
	queueCancel  context.CancelFunc
}

func bootstrap(cfg *config.Config) (*engine, func(), error) {
	st, err := store.Open(cfg.Store.DriverPath)
	if err != nil {
		return nil, nil, err
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	idx, qdrantConn := newVectorIndex(cfg)

	llmClient, err := llm.NewClient(llm.Config{
		Provider: cfg.LLM.Provider, APIKey: cfg.LLM.APIKey, ChatModel: cfg.LLM.Model,
		EmbedModel: cfg.LLM.EmbedModel, BaseURL: cfg.LLM.BaseURL, MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	embedder, err := llm.NewEmbedder(llm.Config{
		Provider: cfg.LLM.Provider, APIKey: cfg.LLM.APIKey, EmbedModel: cfg.LLM.EmbedModel, BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	resMgr := resources.New(resources.Config{
		PoolSize:       cfg.Resource.PoolSize,
		AcquireTimeout: time.Duration(cfg.Resource.AcquireTimeoutMS) * time.Millisecond,
		IdleTTL:        time.Duration(cfg.Resource.IdleTTLSeconds) * time.Second,
	}, st, idx, llmClient, embedder, blobs)

	accessSvc := access.NewService(nil, st, st.Permissions)

	cJudge := chunkjudge.New(llmClient, cfg.Judge.ChunkingEnabled)
	splitter := chunking.NewSplitter(llmClient)
	pipeline := ingestion.NewPipeline(resMgr, cJudge, splitter)
	queue := ingestion.NewMemoryQueue(cfg.Resource.IngestQueueBound)
	ingestMgr := ingestion.NewManager(resMgr, queue)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	go ingestion.StartWorkers(workerCtx, queue, pipeline.ProcessDocument, cfg.Resource.WorkerPoolSize)

	rJudge := retrievaljudge.New(llmClient, cfg.Judge.RetrievalEnabled)
	ragTool := tools.NewRAGTool(resMgr, accessSvc, rJudge, tools.RAGToolConfig{
		MaxIterations: cfg.Retrieval.MaxIterations, TopK: cfg.Retrieval.TopK, RelevanceFloor: cfg.Retrieval.RelevanceFloor,
	})
	calcTool := tools.NewCalculatorTool()
	dbTool := tools.NewDatabaseTool(resMgr)
	registry, err := tools.NewRegistry(ragTool, calcTool, dbTool)
	if err != nil {
		st.Close()
		workerCancel()
		if qdrantConn != nil {
			qdrantConn.Close()
		}
		return nil, nil, err
	}

	synthPipeline := synth.NewPipeline(llmClient, cfg.Response.RefinementEnabled, cfg.Response.MaxRefinementPasses,
		cfg.Response.QualityThreshold, cfg.Response.HallucinationThreshold)

	synthesizeFn := newSynthesizeFunc(synthPipeline)
	exec := executor.New(registry, synthesizeFn, time.Duration(cfg.Deadlines.ToolMS)*time.Millisecond)

	plnr := planner.New(llmClient)

	eng := &engine{
		cfg: cfg, resourceMgr: resMgr, st: st, accessSvc: accessSvc,
		ingestMgr: ingestMgr, planner: plnr, registry: registry, execFn: exec,
		queueCancel: workerCancel,
	}

	cleanup := func() {
		workerCancel()
		st.Close()
		if qdrantConn != nil {
			qdrantConn.Close()
		}
	}
	return eng, cleanup, nil
}

func newBlobStore(cfg *config.Config) (blobstore.ObjectStore, error) {
	if cfg.Blob.Backend == "memory" {
		return blobstore.NewMemoryStore(), nil
	}
	return blobstore.NewS3Store(context.Background(), blobstore.S3Config{
		Bucket: cfg.Blob.Bucket, Region: cfg.Blob.Region, Prefix: cfg.Blob.Prefix,
	})
}

// newVectorIndex connects to Qdrant, falling back to the in-process
// MemoryIndex the way the teacher's main.go fell back to a mock vector DB
// when Qdrant was unreachable.
func newVectorIndex(cfg *config.Config) (vectorindex.Index, *grpc.ClientConn) {
	conn, err := grpc.Dial(*qdrantAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Warnf("failed to connect to Qdrant at %s: %v, using in-memory vector index", *qdrantAddr, err)
		return vectorindex.NewMemoryIndex(), nil
	}
	idx, err := vectorindex.NewQdrantIndex(context.Background(), conn, "hiverag_chunks", 0)
	if err != nil {
		logger.Warnf("failed to initialize Qdrant collection: %v, using in-memory vector index", err)
		conn.Close()
		return vectorindex.NewMemoryIndex(), nil
	}
	logger.Printf("connected to Qdrant at %s", *qdrantAddr)
	return idx, conn
}

// newSynthesizeFunc adapts synth.Pipeline.Compose (which works over
// citation excerpts) to executor.SynthesizeFunc (which works over raw tool
// step results), by pulling every rag step's chunks out of the executed
// plan.
func newSynthesizeFunc(pipeline *synth.Pipeline) executor.SynthesizeFunc {
	return func(ctx context.Context, query string, steps []executor.StepResult, history string) (tools.Output, error) {
		var excerpts []synth.Excerpt
		for _, s := range steps {
			if s.Tool != "rag" || s.Output == nil {
				continue
			}
			chunks, _ := s.Output["chunks"].([]map[string]interface{})
			for _, c := range chunks {
				excerpts = append(excerpts, synth.Excerpt{
					ChunkID:  toString(c["chunk_id"]),
					Filename: toString(c["filename"]),
					Content:  toString(c["content"]),
				})
			}
		}

		answer, eval, err := pipeline.Compose(ctx, query, excerpts, history)
		if err != nil {
			return nil, err
		}
		return tools.Output{
			"text":          answer.Text,
			"code_blocks":   answer.CodeBlocks,
			"evaluation":    eval,
			"excerpts_used": excerpts,
		}, nil
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}
