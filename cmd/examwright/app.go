package main

import (
	"context"
	"fmt"
	"time"

	"github.com/examwright/examwright/internal/batch"
	"github.com/examwright/examwright/internal/config"
	"github.com/examwright/examwright/internal/embedclient"
	"github.com/examwright/examwright/internal/events"
	"github.com/examwright/examwright/internal/grading"
	"github.com/examwright/examwright/internal/gradingstore"
	"github.com/examwright/examwright/internal/llmchat"
	"github.com/examwright/examwright/internal/obslog"
	"github.com/examwright/examwright/internal/obsmetrics"
	"github.com/examwright/examwright/internal/obstrace"
	"github.com/examwright/examwright/internal/pipeline"
	"github.com/examwright/examwright/internal/retrieval"
	firestorevs "github.com/examwright/examwright/internal/retrieval/firestore"
	"github.com/examwright/examwright/internal/retrieval/memory"
	"github.com/examwright/examwright/internal/rubricstore"
	"github.com/examwright/examwright/internal/security"
)

// app bundles the wired components one CLI invocation needs. Built once
// per process from config.Config in a construct-then-run shape, factored
// out so grade/batch/schedule share it instead of each reimplementing
// wiring.
type app struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	scheduler    *batch.Scheduler
	rubrics      *rubricstore.Store
	gradingSink  *gradingstore.Sink
	vectorStore  retrieval.VectorStore
	log          *obslog.Logger
}

// logSink adapts obslog.Logger to events.Sink so pipeline/batch phase
// events are visible in the process log alongside everything else.
type logSink struct{ log *obslog.Logger }

func (s logSink) Emit(e events.Event) {
	if e.Err != nil {
		s.log.Errorf("phase=%s status=%s duration=%s correlation_id=%s err=%v", e.Phase, e.Status, e.Duration, e.CorrelationID, e.Err)
		return
	}
	s.log.Infof("phase=%s status=%s duration=%s correlation_id=%s", e.Phase, e.Status, e.Duration, e.CorrelationID)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := obslog.New("examwright")
	sink := events.FanoutSink{Sinks: []events.Sink{logSink{log: log}}}

	obsmetrics.Init()
	if err := obstrace.Init(obstrace.Config{
		ServiceName:  obstrace.DefaultServiceName,
		Enabled:      cfg.TracingEnabled,
		ExporterType: cfg.TracingExporterType,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
	}); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	chatGraderA, err := newChat(ctx, cfg, cfg.GraderProvider, cfg.GraderModel)
	if err != nil {
		return nil, fmt.Errorf("build grader A chat client: %w", err)
	}
	chatGraderB, err := newChat(ctx, cfg, cfg.GraderProvider, cfg.GraderModel)
	if err != nil {
		return nil, fmt.Errorf("build grader B chat client: %w", err)
	}
	chatArbiter, err := newChat(ctx, cfg, cfg.ArbiterProvider, cfg.ArbiterModel)
	if err != nil {
		return nil, fmt.Errorf("build arbiter chat client: %w", err)
	}

	detector := security.NewDetector()
	evalCfg := grading.Config{
		MaxRetries:            cfg.MaxRetries,
		RetryBaseDelaySeconds: cfg.RetryBaseDelaySeconds,
		RetryMaxDelaySeconds:  cfg.RetryMaxDelaySeconds,
		Temperature:           cfg.GraderTemperature,
		DisableScaleHeuristic: cfg.DisableScaleHeuristic,
	}
	graderA := grading.NewEvaluator(chatGraderA, cfg.GraderModel, evalCfg, detector, sink)
	graderB := grading.NewEvaluator(chatGraderB, cfg.GraderModel, evalCfg, detector, sink)
	arbiter := grading.NewEvaluator(chatArbiter, cfg.ArbiterModel, evalCfg, detector, sink)

	retriever, vs, err := newRetriever(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build retriever: %w", err)
	}

	orch := pipeline.New(retriever, graderA, graderB, arbiter, pipeline.Config{
		DivergenceThreshold:        cfg.DivergenceThreshold,
		RetrievalK:                 cfg.RetrievalK,
		FailClosedOnEmptyRetrieval: cfg.FailClosedOnEmptyRetrieval,
		Deadline:                   secondsToDuration(cfg.PipelineDeadlineSeconds),
	}, sink)

	sched := batch.New(orch, batch.Config{
		ChunkSize: cfg.BatchChunkSize,
		Cooldown:  secondsToDuration(cfg.BatchCooldownSeconds),
	}, sink)

	var rubrics *rubricstore.Store
	if cfg.FirestoreProject != "" {
		rubrics, err = rubricstore.New(ctx, cfg.FirestoreProject, cfg.FirestoreRubricCollection)
		if err != nil {
			return nil, fmt.Errorf("build rubric store: %w", err)
		}
	}

	var gradingSink *gradingstore.Sink
	if cfg.GradingStoreEnabled {
		if cfg.FirestoreProject == "" {
			return nil, fmt.Errorf("grading_store_enabled requires firestore_project")
		}
		gradingSink, err = gradingstore.New(ctx, cfg.FirestoreProject, cfg.FirestoreGradingCollection)
		if err != nil {
			return nil, fmt.Errorf("build grading store sink: %w", err)
		}
	}

	return &app{cfg: cfg, orchestrator: orch, scheduler: sched, rubrics: rubrics, gradingSink: gradingSink, vectorStore: vs, log: log}, nil
}

// close releases any client connections the app opened. Best effort: the
// process is exiting either way.
func (a *app) close(ctx context.Context) {
	if a.rubrics != nil {
		_ = a.rubrics.Close()
	}
	if a.gradingSink != nil {
		_ = a.gradingSink.Close()
	}
	if a.vectorStore != nil {
		_ = a.vectorStore.Close()
	}
	_ = obstrace.Shutdown(ctx)
}

func newChat(ctx context.Context, cfg *config.Config, provider, model string) (llmchat.Chat, error) {
	switch provider {
	case "bedrock":
		return llmchat.NewBedrockChat(ctx, cfg.BedrockRegion, model)
	case "openai", "":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai_key is required for provider %q", provider)
		}
		return llmchat.NewOpenAIChat(cfg.OpenAIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown chat provider %q", provider)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embedclient.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "genai":
		return embedclient.NewGenAIEmbedder(ctx, cfg.GenAIKey, cfg.EmbeddingModel)
	case "openai", "":
		return embedclient.NewOpenAIEmbedder(cfg.OpenAIKey), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func newRetriever(ctx context.Context, cfg *config.Config) (*retrieval.Client, retrieval.VectorStore, error) {
	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	vs, err := newVectorStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var cache retrieval.Cache
	if cfg.RetrievalCacheRedisAddr != "" {
		cache, err = retrieval.NewRedisCache(retrieval.RedisCacheConfig{
			Addr: cfg.RetrievalCacheRedisAddr,
			TTL:  secondsToDuration(cfg.RetrievalCacheTTLSeconds),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build retrieval cache: %w", err)
		}
	}

	return retrieval.New(vs, embedder, cache), vs, nil
}

func newVectorStore(ctx context.Context, cfg *config.Config) (retrieval.VectorStore, error) {
	switch cfg.VectorProvider {
	case "firestore":
		store, err := firestorevs.New(ctx,
			firestorevs.WithProjectID(cfg.FirestoreProject),
			firestorevs.WithCollection(cfg.FirestoreVectorCollection),
		)
		if err != nil {
			return nil, fmt.Errorf("build firestore vector store: %w", err)
		}
		return store, nil
	case "memory", "":
		return memory.New()
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.VectorProvider)
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
