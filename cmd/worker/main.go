package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lumapix/darkroom/internal/config"
	"github.com/lumapix/darkroom/internal/derive"
	"github.com/lumapix/darkroom/internal/exif"
	"github.com/lumapix/darkroom/internal/photo"
	"github.com/lumapix/darkroom/internal/pipeline"
	"github.com/lumapix/darkroom/internal/storage"
	"github.com/lumapix/darkroom/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	if cfg.DatabaseURL == "" {
		fatal(logger, "load config", os.ErrInvalid, "hint", "DATABASE_URL is required")
	}
	logger.Info("worker starting",
		"nats_url", cfg.NATSURL,
		"subject", cfg.JobSubject,
		"durable", cfg.Durable,
		"storage_backend", cfg.StorageBackend,
		"concurrency", cfg.Concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	photos, err := photo.NewPGStore(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "connect metadata store", err)
	}
	defer photos.Close()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		fatal(logger, "init storage backend", err, "backend", cfg.StorageBackend)
	}

	status := &pipeline.StatusWriter{Store: photos, Logger: logger}
	pipe := &pipeline.Pipeline{
		Photos:        photos,
		Blobs:         blobs,
		Gen:           derive.NewEncoder(),
		Exif:          exif.Extract,
		Status:        status,
		WorkspaceRoot: cfg.WorkspaceDir,
		ReadTimeout:   cfg.StorageTimeout,
		Logger:        logger,
	}

	queue, err := worker.Connect(cfg.NATSURL, cfg.StreamName, cfg.JobSubject, cfg.Durable, cfg.MaxDeliver)
	if err != nil {
		fatal(logger, "connect queue", err, "nats_url", cfg.NATSURL)
	}
	defer queue.Close()
	logger.Info("connected to queue", "stream", cfg.StreamName, "subject", cfg.JobSubject)

	w := &worker.Worker{
		Queue:       queue,
		Pipeline:    pipe,
		Status:      status,
		Concurrency: cfg.Concurrency,
		MaxDeliver:  cfg.MaxDeliver,
		Logger:      logger,
	}
	w.Run(ctx)
	logger.Info("worker stopped")
}

func newBlobStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	}
	return storage.NewLocal(cfg.LocalStoragePath)
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
