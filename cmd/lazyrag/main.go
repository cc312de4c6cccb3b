// Command lazyrag runs a search workflow definition against the
// configured backends and prints the resulting trace.
//
// Usage: lazyrag [workflow.yaml]
//
// Configuration is read from config/<ENV>.yaml (default ENV=local). The
// bm25 backend is always available; the redisearch and vector backends
// are registered when the database and embedding sections are set.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	lazyrag "github.com/n-kats/lazy-rag"
	"github.com/n-kats/lazy-rag/internal/config"
	dbredis "github.com/n-kats/lazy-rag/internal/db/redis"
	logpkg "github.com/n-kats/lazy-rag/internal/logger"
	"github.com/n-kats/lazy-rag/internal/metrics"
	"github.com/n-kats/lazy-rag/internal/version"
	"github.com/n-kats/lazy-rag/pkg/backend/lexical"
	"github.com/n-kats/lazy-rag/pkg/backend/redisearch"
	"github.com/n-kats/lazy-rag/pkg/backend/vector"
	openaiemb "github.com/n-kats/lazy-rag/pkg/backend/vector/openai"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lazy-rag workflow runner",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("documents_dir", cfg.Documents.Dir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logpkg.WithContext(ctx, logger)

	// Register metrics explicitly (no init())
	metrics.RegisterServerMetrics()
	metrics.RegisterEmbeddingMetrics()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	source := fileSource(cfg.Documents.Dir, cfg.Documents.Ext)

	reg := lazyrag.NewRegistry(lazyrag.WithRegistryLogger(logger))
	if err := lexical.Register(reg, lexical.WithSource(source), lexical.WithLogger(logger)); err != nil {
		logger.Fatal("Failed to register bm25 backend", zap.Error(err))
	}

	if cfg.Embedding.APIKey != "" {
		embedder := openaiemb.New(openaiemb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		if err := vector.Register(reg, embedder, vector.WithSource(source), vector.WithLogger(logger)); err != nil {
			logger.Fatal("Failed to register vector backend", zap.Error(err))
		}
		logger.Info("Vector backend registered", zap.String("model", cfg.Embedding.Model))
	}

	if len(cfg.Database.Addrs) > 0 {
		store, err := dbredis.NewStore(dbredis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))

		if err := redisearch.Register(reg, store, redisearch.WithSource(source), redisearch.WithLogger(logger)); err != nil {
			logger.Fatal("Failed to register redisearch backend", zap.Error(err))
		}
	}

	workflowPath := cfg.Workflow.Path
	if len(os.Args) > 1 {
		workflowPath = os.Args[1]
	}

	w, err := lazyrag.LoadWorkflowFile(reg, workflowPath, lazyrag.WithWorkflowLogger(logger))
	if err != nil {
		logger.Fatal("Failed to load workflow", zap.String("path", workflowPath), zap.Error(err))
	}

	outputs, err := w.Run(ctx)
	if err != nil {
		logger.Fatal("Workflow failed", zap.Error(err))
	}

	fmt.Print(w.Report())

	logger.Info("Workflow complete",
		zap.Int("nodes", len(outputs)),
		zap.Int("actions", len(w.Log().Actions())),
	)
}

// fileSource serves document content from files under dir: the doc id
// plus ext names the file.
func fileSource(dir, ext string) lazyrag.Source {
	return lazyrag.SourceFunc(func(_ context.Context, docID string) (string, error) {
		path := filepath.Join(dir, docID+ext)
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return "", fmt.Errorf("read document %q: %w", docID, err)
		}
		return string(data), nil
	})
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("Serving metrics", zap.String("addr", addr))
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
