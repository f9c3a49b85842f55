package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alphabot-ai/threadcache/internal/api"
	"github.com/alphabot-ai/threadcache/internal/attachments"
	"github.com/alphabot-ai/threadcache/internal/auth"
	"github.com/alphabot-ai/threadcache/internal/config"
	"github.com/alphabot-ai/threadcache/internal/logging"
	"github.com/alphabot-ai/threadcache/internal/pane"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/render"
	"github.com/alphabot-ai/threadcache/internal/rendercache"
	"github.com/alphabot-ai/threadcache/internal/slots"
	"github.com/alphabot-ai/threadcache/internal/store"
	"github.com/alphabot-ai/threadcache/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, logSink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sqliteStore.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cache, err := newRenderCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	instrumented, err := rendercache.NewInstrumented(cache, registry)
	if err != nil {
		return fmt.Errorf("failed to register cache metrics: %w", err)
	}

	blobs, err := newBlobstore(ctx, cfg)
	if err != nil {
		return err
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to initialize renderer: %w", err)
	}

	// Initialize services
	relations := relation.NewStore(sqliteStore, cfg.RelationTimeout.Duration, logger)
	authService := auth.NewService(sqliteStore, relations, cfg.TokenTTL.Duration)
	images := attachments.NewService(slots.NewAllocator(sqliteStore, logger), blobs, cfg.S3Prefix, cfg.MaxCommunityImages, logger)
	panes := pane.NewService(sqliteStore, relations, renderer, instrumented, cfg.RenderCacheTTL.Duration, cfg.CommentLimit, logger)

	// Initialize handlers
	apiHandler := api.NewHandler(sqliteStore, authService, relations, images, cfg, logger)
	webHandler, err := web.NewHandler(sqliteStore, panes, relations, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize web handler: %w", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	apiHandler.Register(mux)

	// Web routes
	mux.HandleFunc("GET /", apiHandler.OptionalAuth(webHandler.Home))
	mux.HandleFunc("GET /story/{id}", apiHandler.OptionalAuth(webHandler.Story))
	mux.HandleFunc("GET /submit", webHandler.Submit)

	go expireTokens(ctx, sqliteStore, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.LogRequests(logger, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting threadcache", "addr", addr, "cache", cfg.CacheBackend, "blobs", cfg.BlobBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// newRenderCache builds the configured cache backend. An unreachable Redis
// is logged, not fatal: cache failures degrade to direct renders.
func newRenderCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rendercache.Cache, error) {
	switch cfg.CacheBackend {
	case "redis":
		client := rendercache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		return rendercache.NewRedisCache(client, cfg.CacheTimeout.Duration), nil
	case "memory":
		cache := rendercache.NewMemoryCache()
		cache.StartCleanup(ctx, time.Minute)
		return cache, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

func newBlobstore(ctx context.Context, cfg *config.Config) (attachments.Blobstore, error) {
	switch cfg.BlobBackend {
	case "s3":
		client, err := attachments.NewS3Client(ctx, cfg.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
		}
		return attachments.NewS3Blobstore(client, cfg.S3Bucket), nil
	case "memory":
		return attachments.NewMemoryBlobstore(), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
}

func expireTokens(ctx context.Context, s *store.SQLiteStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.DeleteExpiredTokens(ctx); err != nil {
				logger.Warn("failed to delete expired tokens", "error", err)
			}
		}
	}
}
