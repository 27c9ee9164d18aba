package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/normgraph/normgraph/internal/auth"
	"github.com/normgraph/normgraph/internal/chunker"
	"github.com/normgraph/normgraph/internal/config"
	"github.com/normgraph/normgraph/internal/database"
	"github.com/normgraph/normgraph/internal/document"
	"github.com/normgraph/normgraph/internal/embedder"
	"github.com/normgraph/normgraph/internal/extract"
	"github.com/normgraph/normgraph/internal/graph"
	"github.com/normgraph/normgraph/internal/knowledge"
	"github.com/normgraph/normgraph/internal/llm"
	"github.com/normgraph/normgraph/internal/llm/providers"
	"github.com/normgraph/normgraph/internal/observability"
	"github.com/normgraph/normgraph/internal/retrieval"
	"github.com/normgraph/normgraph/internal/vector"
)

// app holds everything a command needs, wired once per invocation.
type app struct {
	cfg    *config.Config
	logger *observability.TracedLogger
	tracer *sdktrace.TracerProvider

	db       *database.DB
	vectors  vector.Store
	graph    graph.Store
	embedder embedder.Embedder
	registry *llm.DefaultRegistry

	// graphConnected is false when Neo4j was unreachable at startup;
	// commands degrade rather than abort.
	graphConnected bool
}

// newApp loads configuration and connects the stores. Commands that
// only read the catalog still pay for the embedder; acceptable for a
// short-lived CLI process.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.NewLoader(config.NewValidator()).LoadWithDefaults(configPath())
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if flagVerbose {
		level = "debug"
	}
	handler := observability.NewHandler(os.Stderr, level, cfg.Logging.Format)
	logger := observability.NewTracedLogger(handler, "cli")
	slog.SetDefault(slog.New(handler))

	tracer, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := os.MkdirAll(cfg.Core.HomeDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	db, err := database.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrator(db).Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	vectors, err := vector.NewStore(cfg.Vector)
	if err != nil {
		db.Close()
		return nil, err
	}

	emb, err := embedder.NewEmbedder(cfg.Embedder)
	if err != nil {
		vectors.Close()
		db.Close()
		return nil, err
	}

	graphStore, err := graph.NewNeo4jStore(cfg.Graph)
	if err != nil {
		vectors.Close()
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		db:       db,
		vectors:  vectors,
		graph:    graphStore,
		embedder: emb,
		registry: buildRegistry(cfg.LLM, logger),
	}

	if err := graphStore.Connect(ctx); err != nil {
		logger.Warn(ctx, "graph store unreachable, graph features degraded", "error", err)
	} else {
		a.graphConnected = true
		if err := graphStore.EnsureSchema(ctx); err != nil {
			logger.Warn(ctx, "failed to ensure graph schema", "error", err)
		}
	}

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.vectors.Close(); err != nil {
		a.logger.Warn(ctx, "failed to close vector store", "error", err)
	}
	if err := a.graph.Close(ctx); err != nil {
		a.logger.Warn(ctx, "failed to close graph store", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn(ctx, "failed to close catalog", "error", err)
	}

	// Flush pending spans even when ctx is already canceled.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := observability.ShutdownTracing(flushCtx, a.tracer); err != nil {
		a.logger.Warn(ctx, "failed to shut down tracing", "error", err)
	}
}

// buildRegistry registers every configured provider; a bad provider
// config is skipped with a warning so the rest keep working.
func buildRegistry(cfg config.LLMConfig, logger *observability.TracedLogger) *llm.DefaultRegistry {
	registry := llm.NewRegistry(cfg.DefaultProvider)
	for name, pc := range cfg.Providers {
		provider, err := providers.NewProvider(llm.ProviderConfig{
			Type:              name,
			APIKey:            pc.APIKey,
			Model:             pc.Model,
			BaseURL:           pc.BaseURL,
			MaxTokens:         pc.MaxTokens,
			Temperature:       pc.Temperature,
			RequestsPerMinute: pc.RequestsPerMinute,
		})
		if err != nil {
			logger.Warn(context.Background(), "skipping provider", "provider", name, "error", err)
			continue
		}
		if err := registry.RegisterProvider(provider); err != nil {
			logger.Warn(context.Background(), "failed to register provider", "provider", name, "error", err)
		}
	}
	return registry
}

// defaultLLM returns the default provider and its configured model, or
// (nil, "") when no provider is usable; callers fall back to the
// non-LLM paths.
func (a *app) defaultLLM(ctx context.Context) (llm.Provider, string) {
	provider, err := a.registry.DefaultProvider()
	if err != nil {
		a.logger.Warn(ctx, "no usable LLM provider, LLM features disabled", "error", err)
		return nil, ""
	}
	model := a.cfg.LLM.Providers[a.cfg.LLM.DefaultProvider].Model
	return provider, model
}

func (a *app) newIngester(ctx context.Context) (*knowledge.Ingester, error) {
	provider, model := a.defaultLLM(ctx)

	classifier, err := document.NewClassifier(provider, model, a.logger.WithComponent("classifier"))
	if err != nil {
		return nil, err
	}

	var extractor *extract.Extractor
	if provider != nil {
		extractor = extract.NewExtractor(provider, model, a.logger.WithComponent("extract"))
	}

	return knowledge.NewIngester(
		classifier,
		chunker.NewProcessor(),
		extractor,
		a.embedder,
		a.vectors,
		a.graph,
		a.db,
		a.logger.WithComponent("ingest"),
	), nil
}

func (a *app) newOrchestrator(ctx context.Context) (*retrieval.Orchestrator, error) {
	provider, model := a.defaultLLM(ctx)
	if provider == nil {
		return nil, fmt.Errorf("querying requires a configured LLM provider")
	}

	return retrieval.NewOrchestrator(
		retrieval.NewAnalyzer(provider, model, a.logger.WithComponent("intent")),
		retrieval.NewHybridRetriever(a.embedder, a.vectors, a.graph,
			database.NewKeywordIndex(a.db), a.logger.WithComponent("retrieval")),
		retrieval.NewSynthesizer(provider, model, a.logger.WithComponent("synthesis")),
		a.cfg.Retrieval,
		a.logger.WithComponent("query"),
	), nil
}

func (a *app) newManager() knowledge.Manager {
	return knowledge.NewManager(a.vectors, a.graph, a.db, a.logger.WithComponent("knowledge"))
}

// jwtSecret resolves the signing secret: config value, or a generated
// secret persisted under the home directory.
func (a *app) jwtSecret() ([]byte, error) {
	if a.cfg.Auth.JWTSecret != "" {
		return []byte(a.cfg.Auth.JWTSecret), nil
	}
	return auth.LoadOrCreateSecret(filepath.Join(a.cfg.Core.HomeDir, "jwt.secret"))
}
