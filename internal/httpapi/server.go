// Package httpapi exposes the gateway's OpenAI-compatible HTTP surface:
// /v1/responses, /v1/chat/completions, /v1/files, and the
// /v1/vector_stores family, routed with chi and served by a *http.Server
// over an explicit net.Listener with graceful Shutdown and /metrics
// mounted via promhttp.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/orchestrator"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/store"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/telemetry"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/vectorstore"
)

// Deps are the collaborators the HTTP layer wires request bodies against.
// Every field is a narrow interface or concrete package type the rest of
// the gateway already built; httpapi adds no business logic of its own
// beyond request parsing, response shaping, and error-to-status mapping.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Responses    store.ResponseStore
	Completions  store.CompletionStore
	VectorRepo   vectorstore.Repository
	Searcher     *vectorstore.Searcher
	Indexer      *vectorstore.Indexer
	Blobs        *BlobStore
	Tracer       *telemetry.Tracer
	Metrics      *telemetry.Metrics
	Logger       *slog.Logger

	DefaultChunkSizeTokens    int
	DefaultChunkOverlapTokens int
}

// NewRouter builds the chi router serving the full /v1 surface.
func NewRouter(d *Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &handlers{d: d}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/responses", h.createResponse)
		r.Get("/responses/{id}", h.getResponse)
		r.Delete("/responses/{id}", h.deleteResponse)
		r.Get("/responses/{id}/input_items", h.listInputItems)

		r.Post("/chat/completions", h.chatCompletions)

		r.Post("/files", h.createFile)
		r.Get("/files", h.listFiles)
		r.Get("/files/{id}", h.getFile)
		r.Delete("/files/{id}", h.deleteFile)
		r.Get("/files/{id}/content", h.getFileContent)

		r.Post("/vector_stores", h.createVectorStore)
		r.Get("/vector_stores", h.listVectorStores)
		r.Get("/vector_stores/{id}", h.getVectorStore)
		r.Delete("/vector_stores/{id}", h.deleteVectorStore)
		r.Post("/vector_stores/{id}/search", h.searchVectorStore)
		r.Post("/vector_stores/{id}/files", h.attachFile)
		r.Get("/vector_stores/{id}/files", h.listVectorStoreFiles)
		r.Delete("/vector_stores/{id}/files/{fileId}", h.detachFile)
	})

	return r
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
		})
	}
}

// handlers closes over Deps so each route method stays a small adapter
// between net/http and the domain packages.
type handlers struct{ d *Deps }

// Serve starts the HTTP server on addr and blocks until ctx is cancelled,
// then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	logger.Info("httpapi: serving", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("httpapi: shutdown error", "error", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
