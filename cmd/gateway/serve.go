package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/config"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/httpapi"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/mcpclient"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/orchestrator"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/provider"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/store"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/telemetry"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolhandler"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolservice"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/vectorstore"
)

// buildServeCmd creates the "serve" command that starts the gateway.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long: `Start the gateway server.

The server will:
1. Load configuration from the specified file plus the environment
2. Open the response/completion store (in-memory LRU or SQLite)
3. Initialize the vector-store repository, indexer, and expiration sweeper
4. Register the builtin tools (file_search, agentic_search, image_generation)
5. Serve the OpenAI-compatible HTTP surface

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gateway.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(parentCtx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Observability.LogLevel
	if debug {
		level = "debug"
	}
	logger := telemetry.NewLogger(telemetry.LogConfig{Level: level})

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer := telemetry.NewTracer(telemetry.TraceConfig{
		ServiceName:    "open-responses-gateway",
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.SamplingRate,
		Insecure:       true,
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()
	metrics := telemetry.NewMetrics()

	responses, completions, closeStores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	repo, err := vectorstore.NewFileRepository(cfg.Store.RootDir)
	if err != nil {
		return fmt.Errorf("open vector repository: %w", err)
	}
	embedder := buildEmbedder(cfg)
	indexer := vectorstore.NewIndexer(repo, embedder)
	searcher := vectorstore.NewSearcher(repo, embedder, cfg.VectorStore.MinScore)

	sweeper := vectorstore.NewSweeper(repo, logger)
	if err := sweeper.Start(ctx, cfg.VectorStore.SweepInterval); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	tools := toolservice.New()
	tools.RegisterFileSearch(searcher, 10)
	tools.RegisterAgenticSearch(searcher, 10)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		tools.RegisterImageGeneration(provider.NewOpenAIImageGenerator(key, cfg.Providers["openai"], ""))
	}

	mcpServers := make([]mcpclient.ServerConfig, 0, len(cfg.MCPServers))
	for _, s := range cfg.MCPServers {
		mcpServers = append(mcpServers, mcpclient.ServerConfig{
			Label:      s.Label,
			Endpoint:   s.Endpoint,
			BearerAuth: s.BearerAuth,
		})
	}
	mcp := mcpclient.New(mcpServers)
	defer mcp.Close()

	// Each upstream family gets retry/circuit-breaker behavior plus an
	// optional token-bucket limiter; retries consume limiter tokens too.
	wrap := func(p provider.LLMProvider) provider.LLMProvider {
		if cfg.RateLimit.RPS > 0 {
			burst := cfg.RateLimit.Burst
			if burst <= 0 {
				burst = 1
			}
			p = provider.NewRateLimitedProvider(p, cfg.RateLimit.RPS, burst)
		}
		return provider.NewFailoverProvider(provider.DefaultFailoverConfig(), p)
	}
	router := orchestrator.NewRouter(
		wrap(provider.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"))),
		wrap(provider.NewAnthropicProvider(os.Getenv("ANTHROPIC_API_KEY"))),
		wrap(provider.NewGeminiProvider(os.Getenv("GEMINI_API_KEY"))),
	)
	handler := toolhandler.New(tools, mcp, tracer, metrics)
	orch := orchestrator.New(router, tools, handler, responses, tracer, metrics, logger, cfg)

	blobs, err := httpapi.NewBlobStore(cfg.Store.RootDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	deps := &httpapi.Deps{
		Orchestrator: orch,
		Responses:    responses,
		Completions:  completions,
		VectorRepo:   repo,
		Searcher:     searcher,
		Indexer:      indexer,
		Blobs:        blobs,
		Tracer:       tracer,
		Metrics:      metrics,
		Logger:       logger,

		DefaultChunkSizeTokens:    cfg.VectorStore.ChunkSizeTokens,
		DefaultChunkOverlapTokens: cfg.VectorStore.ChunkOverlapTokens,
	}

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port))
	logger.Info("starting gateway",
		"version", version,
		"addr", addr,
		"max_tool_calls", cfg.Tools.MaxToolCallsBuffered,
		"streaming_timeout", cfg.Tools.StreamingTimeout,
	)
	return httpapi.Serve(ctx, addr, httpapi.NewRouter(deps), logger)
}

// openStores picks the SQLite-backed store when a path is configured and
// the bounded in-memory LRU otherwise. Both honor the same merge semantics,
// so nothing downstream cares which is active.
func openStores(cfg *config.Config) (store.ResponseStore, store.CompletionStore, func(), error) {
	if cfg.Store.SQLitePath != "" {
		s, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, store.CompletionStoreAdapter{SQLiteStore: s}, func() { _ = s.Close() }, nil
	}
	responses := store.NewMemoryResponseStore(cfg.Store.CacheSize)
	completions := store.NewMemoryCompletionStore(cfg.Store.CacheSize)
	return responses, completions, func() {}, nil
}

// buildEmbedder returns the OpenAI embeddings client when a credential is
// available and the deterministic hash embedder otherwise, so local runs
// work without any upstream configured.
func buildEmbedder(cfg *config.Config) vectorstore.Embedder {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return vectorstore.NewOpenAIEmbedder(key, cfg.Providers["openai"], "", cfg.VectorStore.VectorDimension)
	}
	return vectorstore.NewHashEmbedder(cfg.VectorStore.VectorDimension)
}
