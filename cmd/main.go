package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"geoclassify/classify"
	"geoclassify/config"
	qhttp "geoclassify/http"
	"geoclassify/logging"
	"geoclassify/ml"
	"geoclassify/monitoring"
	"geoclassify/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(findConfig(*configPath))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

// findConfig looks for config.yaml in the working directory and its parent
// when no path is given, so the binary can run from cmd/.
func findConfig(path string) string {
	if path != "" {
		return path
	}
	for _, candidate := range []string{"config.yaml", filepath.Join("..", "config.yaml")} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// 2. Model registry; the default model is loaded up front so a bad artifact fails start-up.
	registry, err := ml.NewRegistry(cfg.Registry(), logger)
	if err != nil {
		return err
	}
	defer registry.Close()
	_, release, err := registry.Acquire("")
	if err != nil {
		return fmt.Errorf("load default model: %w", err)
	}
	release()

	// 3. Object storage
	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer c.Close()
	}

	var metrics *monitoring.MetricsCollector
	opts := classify.Options{
		TempDir:         cfg.Storage.TempDir,
		HTTPClient:      &http.Client{Timeout: cfg.Source.FetchTimeout},
		MaxVirtualBytes: cfg.Source.MaxMemoryMB << 20,
		MaxReadValues:   cfg.Source.MaxReadValues,
	}
	if !cfg.HTTP.DisableMetrics {
		metrics = monitoring.NewMetricsCollector()
		opts.Metrics = metrics
	}
	svc := classify.NewService(store, registry, logger, opts)

	// 4. Start HTTP server
	serverCfg := qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxUploadMB << 20,
	}
	if cfg.Storage.Backend == config.BackendFS {
		serverCfg.FilesDir = cfg.Storage.LocalDir
	}
	server := qhttp.NewServer(serverCfg, qhttp.NewHandler(svc, logger), metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("service ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("default_model", registry.Default()),
		zap.Strings("models", registry.Names()),
	)

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}

func newStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case config.BackendS3:
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:        sc.Bucket,
			Region:        sc.Region,
			Endpoint:      sc.Endpoint,
			PathStyle:     sc.PathStyle,
			PublicBaseURL: sc.PublicBaseURL,
			PublicRead:    !sc.Private,
		})
	case config.BackendGCS:
		return storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:        sc.Bucket,
			PublicBaseURL: sc.PublicBaseURL,
			PublicRead:    !sc.Private,
		})
	case config.BackendFS:
		base := sc.PublicBaseURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%d/files", cfg.HTTP.Port)
		}
		return storage.NewFSStore(sc.LocalDir, base)
	default:
		return nil, errors.New("unknown storage backend " + sc.Backend)
	}
}
