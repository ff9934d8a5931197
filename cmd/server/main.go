package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"adekit/internal/ade"
	"adekit/internal/cache"
	"adekit/internal/config"
	"adekit/internal/handler"
	"adekit/internal/logger"
	"adekit/internal/notify/noop"
	"adekit/internal/notify/ses"
	"adekit/internal/port"
	"adekit/internal/repository/postgres"
	"adekit/internal/router"
	"adekit/internal/schedule"
	"adekit/internal/service"
	s3storage "adekit/internal/storage/s3"
	"adekit/internal/validate"
)

// @title adekit API
// @version 1.0
// @description Document parsing and field extraction gateway.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadFile(os.Getenv("ADE_CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	zl, err := logger.Init(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, zl)

	db, err := postgres.NewDB(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	jobRepo := postgres.NewJobRepo(db)

	// Initialize storage
	store, err := s3storage.NewDocumentStore(ctx, &cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 store: %w", err)
	}

	// Initialize the extraction API client
	client, err := ade.NewClient(&cfg.Client)
	if err != nil {
		return fmt.Errorf("failed to initialize API client: %w", err)
	}
	processor := cache.NewCachedProcessor(client, cfg.Cache.Size, cfg.Cache.TTL)
	schemas := validate.NewSchemaValidator(cfg.Cache.Size)

	notifier, err := newNotifier(ctx, &cfg.Notify)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	// Initialize services
	authSvc := service.NewAuthService(&cfg.JWT)
	jobSvc := service.NewJobService(jobRepo, store, processor, schemas, cfg.S3.MaxFileSizeMB<<20)

	worker := service.NewJobWorker(jobRepo, processor, client, store, notifier, schemas, service.JobWorkerConfig{
		PollInterval:   time.Duration(cfg.Queue.PollIntervalSecs) * time.Second,
		MaxRetries:     cfg.Queue.MaxRetries,
		Concurrency:    cfg.Queue.Concurrency,
		JobTimeout:     time.Duration(cfg.Queue.JobTimeoutMins) * time.Minute,
		AsyncThreshold: cfg.Client.AsyncThresholdMB << 20,
		SendURL:        cfg.S3.SendURL,
		PresignTTL:     time.Duration(cfg.S3.PresignExpiry) * time.Second,
	})

	scheduler := schedule.NewCronScheduler()
	if cfg.Cleanup.RetentionDays > 0 && cfg.Cleanup.Schedule != "" {
		cleanup := service.NewCleanupJob(jobRepo, store, time.Duration(cfg.Cleanup.RetentionDays)*24*time.Hour)
		if err := scheduler.AddJob(cleanup, cfg.Cleanup.Schedule); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
	}

	// Setup router
	r := router.Setup(zl, authSvc, cfg.Server.CORSOrigins, router.Handlers{
		Job:     handler.NewJobHandler(jobSvc),
		Extract: handler.NewExtractHandler(jobSvc),
		Health:  handler.NewHealthHandler(db, client),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()
	scheduler.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			scheduler.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server shutdown", zap.Error(err))
	}
	scheduler.Stop()
	wg.Wait()
	zl.Info("shutdown complete")
	return nil
}

func newNotifier(ctx context.Context, cfg *config.NotifyConfig) (port.Notifier, error) {
	switch cfg.Provider {
	case "ses":
		return ses.NewSESNotifier(ctx, cfg)
	case "noop", "":
		return noop.NewNoopNotifier(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Provider)
	}
}
