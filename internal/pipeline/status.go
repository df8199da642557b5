// internal/pipeline/status.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lumapix/darkroom/internal/photo"
)

// StatusWriter performs the final record writes with a small bounded
// retry. These writes race no one; losing one is an observability loss,
// not data loss, so after the last attempt the write is logged and
// abandoned rather than failing the job.
type StatusWriter struct {
	Store photo.Store
	// Attempts defaults to 3 when zero.
	Attempts int
	// Backoff is the linear backoff base (1s, 2s, ...). Defaults to one
	// second when zero; tests inject something smaller.
	Backoff time.Duration
	Logger  *slog.Logger
}

// MarkError flips the record for photoID to the error status so an
// operator can tell a dead job from one still in flight. Best effort: all
// failures are logged, never returned.
func (w *StatusWriter) MarkError(ctx context.Context, photoID string) {
	logger := w.logger().With("photo_id", photoID)

	id, err := uuid.Parse(photoID)
	if err != nil {
		logger.Error("mark error: bad photo id", "err", err)
		return
	}
	rec, err := w.Store.FindByID(ctx, id)
	if errors.Is(err, photo.ErrNotFound) {
		logger.Info("mark error: no record to update")
		return
	}
	if err != nil {
		logger.Error("mark error: lookup failed", "err", err)
		return
	}

	rec.Status = photo.StatusError
	if err := w.save(ctx, rec); err != nil {
		logger.Error("mark error abandoned", "err", err)
	}
}

// save upserts the record with a fresh timestamp, retrying with linear
// backoff up to the attempt bound.
func (w *StatusWriter) save(ctx context.Context, rec *photo.Photo) error {
	attempts := w.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := w.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if i > 1 {
			select {
			case <-time.After(time.Duration(i-1) * backoff):
			case <-ctx.Done():
				return fmt.Errorf("status write interrupted: %w", ctx.Err())
			}
		}
		rec.UpdatedAt = time.Now().UTC()
		err = w.Store.Save(ctx, rec)
		if err == nil {
			return nil
		}
		w.logger().Warn("status write failed", "photo_id", rec.ID, "status", rec.Status, "attempt", i, "err", err)
	}
	return fmt.Errorf("status write failed after %d attempts: %w", attempts, err)
}

func (w *StatusWriter) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
