// cmd/backfill/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/lumapix/darkroom/internal/config"
	"github.com/lumapix/darkroom/internal/worker"
	"github.com/lumapix/darkroom/pkg/schema"
)

// backfill re-enqueues derivative jobs for photos that never reached the
// ready state. Re-delivery of a completed job is a no-op for the worker,
// so over-publishing here is safe.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var (
		dryRun       = flag.Bool("dry-run", false, "log what would be published without publishing")
		limit        = flag.Int("limit", 0, "max photos to enqueue, 0 for all")
		includeError = flag.Bool("include-error", false, "also re-enqueue photos in the error state")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	if cfg.DatabaseURL == "" {
		fatal(logger, "load config", os.ErrInvalid, "hint", "DATABASE_URL is required")
	}

	statuses := []string{"processing"}
	if *includeError {
		statuses = append(statuses, "error")
	}
	logger.Info("backfill starting",
		"nats_url", cfg.NATSURL,
		"subject", cfg.JobSubject,
		"statuses", statuses,
		"limit", *limit,
		"dry_run", *dryRun,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "connect postgres", err)
	}
	defer pool.Close()

	var pub *worker.Publisher
	if !*dryRun {
		pub, err = worker.ConnectPublisher(cfg.NATSURL, cfg.StreamName, cfg.JobSubject)
		if err != nil {
			fatal(logger, "connect queue", err, "nats_url", cfg.NATSURL)
		}
		defer pub.Close()
	}

	q := `SELECT id, original_key FROM photos WHERE status = ANY($1) ORDER BY updated_at`
	args := []any{statuses}
	if *limit > 0 {
		q += ` LIMIT $2`
		args = append(args, *limit)
	}
	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		fatal(logger, "query photos", err)
	}
	defer rows.Close()

	published, skipped := 0, 0
	for rows.Next() {
		var id uuid.UUID
		var originalKey *string
		if err := rows.Scan(&id, &originalKey); err != nil {
			fatal(logger, "scan photo row", err)
		}
		if originalKey == nil || *originalKey == "" {
			logger.Warn("photo has no original key, skipping", "photo_id", id)
			skipped++
			continue
		}

		msg := schema.JobMessage{PhotoID: id.String(), OriginalKey: *originalKey}
		if *dryRun {
			logger.Info("would publish", "photo_id", msg.PhotoID, "original_key", msg.OriginalKey)
			published++
			continue
		}
		if err := pub.PublishJSON(msg); err != nil {
			fatal(logger, "publish job", err, "photo_id", msg.PhotoID)
		}
		logger.Info("published", "photo_id", msg.PhotoID)
		published++
	}
	if err := rows.Err(); err != nil {
		fatal(logger, "iterate photos", err)
	}

	fmt.Printf("backfill done: %d published, %d skipped\n", published, skipped)
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
