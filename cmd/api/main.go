package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthdocs/thumbnail-service/internal/audit"
	"github.com/hearthdocs/thumbnail-service/internal/cache"
	"github.com/hearthdocs/thumbnail-service/internal/coalesce"
	"github.com/hearthdocs/thumbnail-service/internal/config"
	"github.com/hearthdocs/thumbnail-service/internal/docs"
	httpserver "github.com/hearthdocs/thumbnail-service/internal/http"
	"github.com/hearthdocs/thumbnail-service/internal/http/handlers"
	"github.com/hearthdocs/thumbnail-service/internal/metrics"
	"github.com/hearthdocs/thumbnail-service/internal/queue"
	"github.com/hearthdocs/thumbnail-service/internal/ratelimit"
	"github.com/hearthdocs/thumbnail-service/internal/render"
	"github.com/hearthdocs/thumbnail-service/internal/repository"
	"github.com/hearthdocs/thumbnail-service/internal/service"
	"github.com/hearthdocs/thumbnail-service/internal/storage"
	"github.com/hearthdocs/thumbnail-service/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[thumbsvc] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	store, err := storage.NewFilesystemStore(cfg.StorageDir, cfg.StorageBaseURL, cfg.StorageSigningSecret)
	if err != nil {
		logger.Fatalf("failed to initialize object store: %v", err)
	}

	// The document directory is owned by the surrounding product; the
	// in-memory implementation backs standalone deployments and dev.
	directory := docs.NewMemoryDirectory()
	logger.Printf("using in-memory document directory")

	collector := metrics.NewCollector()
	limiter := ratelimit.NewPerUser(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Close()
	urlCache := cache.NewURLCache(cfg.URLCacheMaxEntries)
	registry := coalesce.NewRegistry(time.Duration(cfg.CoalesceCeilingSeconds) * time.Second)
	sink := audit.NewLogSink(logger)

	issuer := service.NewIssuer(
		directory,
		store,
		sink,
		collector,
		logger,
		time.Duration(cfg.SignedURLTTLMinutes)*time.Minute,
	)
	jobsService := service.NewJobsService(repo, producer, collector, logger)
	thumbnails := service.NewThumbnails(service.ThumbnailsDependencies{
		Limiter:   limiter,
		URLCache:  urlCache,
		Registry:  registry,
		Store:     store,
		Issuer:    issuer,
		Jobs:      jobsService,
		Directory: directory,
		Metrics:   collector,
		Logger:    logger,
	})

	api := handlers.NewAPI(thumbnails)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:       api,
		Logger:    logger,
		AuthToken: cfg.AuthToken,
		Objects:   store.ObjectsHandler(),
		Metrics:   collector.Handler(),
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(
			consumer,
			repo,
			store,
			render.NewRenderer(cfg.RenderJPEGQuality),
			registry,
			collector,
			logger,
		)
		go processor.Start(ctx)
		logger.Printf("rendering worker enabled and started")
	} else {
		logger.Printf("rendering worker disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repository.JobsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryJobsRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresJobsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres repository, fallback to memory: %v", err)
		return repository.NewMemoryJobsRepository(), func() {}
	}
	logger.Printf("postgres repository initialized")
	return pgRepo, func() {
		pgRepo.Close()
	}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(256, 3, logger)
		return local, local, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: 3,
	})
	if err != nil {
		logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
		local := queue.NewLocalQueue(256, 3, logger)
		return local, local, func() {}
	}

	logger.Printf("redis streams queue initialized")
	return streams, streams, func() {
		_ = streams.Close()
	}
}
