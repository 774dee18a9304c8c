package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/chapter"
	"github.com/coursemind/coursemind/internal/chunker"
	"github.com/coursemind/coursemind/internal/config"
	"github.com/coursemind/coursemind/internal/db"
	dbMemory "github.com/coursemind/coursemind/internal/db/memory"
	dbRedis "github.com/coursemind/coursemind/internal/db/redis"
	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/extract"
	memindex "github.com/coursemind/coursemind/internal/index/memory"
	logpkg "github.com/coursemind/coursemind/internal/logger"
	"github.com/coursemind/coursemind/internal/metrics"
	"github.com/coursemind/coursemind/internal/repository/embcache"
	"github.com/coursemind/coursemind/internal/repository/jobs"
	chiTransport "github.com/coursemind/coursemind/internal/transport/chi"
	openaiProv "github.com/coursemind/coursemind/internal/transport/openai"
	ingestuc "github.com/coursemind/coursemind/internal/usecase/ingest"
	retrievaluc "github.com/coursemind/coursemind/internal/usecase/retrieval"
	"github.com/coursemind/coursemind/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting coursemind API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Database store backs the job tracker and the embedding cache.
	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
	default:
		store = dbMemory.NewStore()
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterProviderMetrics()
	metrics.RegisterIngestMetrics()

	// Embedder chain: OpenAI-compatible provider wrapped in a KV cache.
	baseEmbedder := openaiProv.NewEmbedder(&openaiProv.Config{
		APIKey:     cfg.Provider.APIKey,
		BaseURL:    cfg.Provider.BaseURL,
		Model:      cfg.Provider.EmbeddingModel,
		Dimensions: cfg.Provider.Dimensions,
		Logger:     logger,
	})
	embedder := embcache.New(
		baseEmbedder, store,
		time.Duration(cfg.Provider.EmbedCacheTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)
	logger.Info("Embedder created",
		zap.String("model", cfg.Provider.EmbeddingModel),
		zap.Int("dimensions", cfg.Provider.Dimensions),
	)

	completer := openaiProv.NewCompleter(&openaiProv.CompleterConfig{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		Model:       cfg.Provider.CompletionModel,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
		Logger:      logger,
	})

	// Pipeline components.
	extractor := extract.New(extract.ExecRunner{})
	detector := chapter.New()
	slicer, err := chunker.New(cfg.Ingest.MaxChunkWords, cfg.Ingest.OverlapWords)
	if err != nil {
		logger.Fatal("Invalid chunker configuration", zap.Error(err))
	}

	idx := memindex.New()

	jobTTL := time.Duration(cfg.Ingest.JobTTLSec) * time.Second
	var jobStore jobs.Store
	switch cfg.Database.Driver {
	case "redis":
		jobStore = jobs.NewRedisStore(store, jobTTL)
	default:
		jobStore = jobs.NewMemoryStore(jobTTL)
	}

	ingestSvc := ingestuc.New(
		jobStore, idx, embedder, extractor, detector, slicer,
		cfg.Ingest.Workers, logger,
	).WithEmbedRetries(cfg.Ingest.EmbedRetries, 500*time.Millisecond)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	ingestSvc.Start(workerCtx)

	retrievalSvc := retrievaluc.New(idx, embedder, completer, retrievaluc.Options{
		DefaultTopK:       cfg.Retrieval.DefaultTopK,
		ContextWordBudget: cfg.Retrieval.ContextWordBudget,
		VectorWeight:      cfg.Retrieval.VectorWeight,
		KeywordWeight:     cfg.Retrieval.KeywordWeight,
		PhraseWeight:      cfg.Retrieval.PhraseWeight,
		Timeout:           time.Duration(cfg.Retrieval.TimeoutSec) * time.Second,
		SynthesisRetries:  cfg.Retrieval.SynthesisRetries,
		RetryBackoff:      time.Duration(cfg.Retrieval.RetryBackoffMS) * time.Millisecond,
	}, logger).WithReindexer(ingestSvc)

	server := chiTransport.NewServer(
		ingestSvc, retrievalSvc,
		newHealthChecker(store, baseEmbedder),
		cfg.HTTP.MaxUploadMB, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Drain in-flight ingestion jobs before exit.
	stopWorkers()
	ingestSvc.Stop()

	logger.Info("Server stopped gracefully")
}

// healthChecker reports readiness of the store and the embedding provider.
type healthChecker struct {
	store    db.Pinger
	provider domain.Embedder
}

func newHealthChecker(store db.Pinger, provider domain.Embedder) *healthChecker {
	return &healthChecker{store: store, provider: provider}
}

func (h *healthChecker) Check(r *http.Request) (string, map[string]string, bool) {
	checks := make(map[string]string, 2)
	healthy := true

	if err := h.store.Ping(r.Context()); err != nil {
		checks["database"] = "down"
		healthy = false
	} else {
		checks["database"] = "up"
	}

	// Provider check only on explicit request: it costs a remote call.
	if r.URL.Query().Get("verbose") == "true" {
		if hc, ok := h.provider.(domain.HealthChecker); ok {
			if err := hc.HealthCheck(r.Context()); err != nil {
				checks["provider"] = "down"
				healthy = false
			} else {
				checks["provider"] = "up"
			}
		}
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return status, checks, healthy
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
