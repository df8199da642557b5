package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/lumapix/darkroom/internal/batch"
	"github.com/lumapix/darkroom/internal/config"
	"github.com/lumapix/darkroom/internal/derive"
	"github.com/lumapix/darkroom/internal/exif"
	"github.com/lumapix/darkroom/internal/photo"
	"github.com/lumapix/darkroom/internal/pipeline"
	"github.com/lumapix/darkroom/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	if cfg.DatabaseURL == "" {
		fatal(logger, "load config", os.ErrInvalid, "hint", "DATABASE_URL is required")
	}

	ctx := context.Background()

	photos, err := photo.NewPGStore(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "connect metadata store", err)
	}

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

	h := &batch.Handler{Pipeline: pipe, Status: status, Logger: logger}
	lambda.Start(h.Handle)
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
