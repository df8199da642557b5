// Package pipeline orchestrates one derivative job: stage the original in
// an exclusive temp workspace, generate the derivative ladder, extract
// metadata, upload results, and flip the photo record to ready. The
// workspace is removed on every exit path; processing errors propagate to
// the delivery surface after cleanup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lumapix/darkroom/internal/derive"
	"github.com/lumapix/darkroom/internal/photo"
	"github.com/lumapix/darkroom/internal/storage"
	"github.com/lumapix/darkroom/pkg/schema"
)

// ErrInvalidJob marks a message that can never succeed, like one naming an
// unparsable photo id. Delivery surfaces drop these instead of retrying.
var ErrInvalidJob = errors.New("pipeline: invalid job")

// Outcome distinguishes the ways a job can finish without failing, so
// callers never have to sniff error strings to tell a skip from a success.
type Outcome int

const (
	// Processed means derivatives were generated and the record is ready.
	Processed Outcome = iota
	// SkippedMissing means no record exists for the photo id; the message
	// is consumed, since a missing record is not a transient condition.
	SkippedMissing
	// SkippedDone means the record was already ready; re-delivery of a
	// completed job is free.
	SkippedDone
)

// Generator is the derivative encoder consumed by the pipeline.
type Generator interface {
	Derivatives(ctx context.Context, srcPath, outDir string) (paths []string, width, height int, err error)
	BlurPlaceholder(ctx context.Context, srcPath string) (string, error)
}

// Pipeline wires the collaborators of one processing run. All fields are
// injected; there are no package-level clients.
type Pipeline struct {
	Photos photo.Store
	Blobs  storage.Store
	Gen    Generator
	Exif   func(path string) *schema.ExifRecord
	Status *StatusWriter

	// WorkspaceRoot defaults to the system temp dir when empty.
	WorkspaceRoot string
	// ReadTimeout bounds the original download, the only built-in timeout.
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// Run processes a single job message. A nil error with a skip outcome
// means the message should be consumed without retrying.
func (p *Pipeline) Run(ctx context.Context, msg schema.JobMessage, attempt int) (Outcome, error) {
	logger := p.logger().With("photo_id", msg.PhotoID, "attempt", attempt)

	id, err := uuid.Parse(msg.PhotoID)
	if err != nil {
		return Processed, fmt.Errorf("%w: parse photo id %q: %v", ErrInvalidJob, msg.PhotoID, err)
	}

	rec, err := p.Photos.FindByID(ctx, id)
	if errors.Is(err, photo.ErrNotFound) {
		logger.Info("no record for photo, skipping")
		return SkippedMissing, nil
	}
	if err != nil {
		return Processed, fmt.Errorf("look up photo: %w", err)
	}
	if rec.Status == photo.StatusReady {
		logger.Info("photo already ready, skipping")
		return SkippedDone, nil
	}

	workspace, err := os.MkdirTemp(p.WorkspaceRoot, fmt.Sprintf("darkroom-%s-a%d-", msg.PhotoID, attempt))
	if err != nil {
		return Processed, fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warn("workspace cleanup failed", "workspace", workspace, "err", err)
		}
	}()

	originalName := "original" + filepath.Ext(msg.OriginalKey)
	originalPath := filepath.Join(workspace, originalName)
	if err := p.download(ctx, msg.OriginalKey, originalPath); err != nil {
		return Processed, fmt.Errorf("stage original: %w", err)
	}
	logger.Info("original staged", "key", msg.OriginalKey)

	outputs, width, height, err := p.Gen.Derivatives(ctx, originalPath, workspace)
	if err != nil {
		return Processed, fmt.Errorf("generate derivatives: %w", err)
	}
	logger.Info("derivatives generated", "count", len(outputs), "width", width, "height", height)

	exifRec := p.Exif(originalPath)
	logger.Info("exif extracted", "has_exif", exifRec != nil)

	blur, err := p.Gen.BlurPlaceholder(ctx, originalPath)
	if err != nil {
		return Processed, fmt.Errorf("generate blur placeholder: %w", err)
	}
	logger.Info("blur placeholder generated")

	uploaded, err := p.uploadDerivatives(ctx, msg.PhotoID, workspace, originalName)
	if err != nil {
		return Processed, err
	}
	logger.Info("derivatives uploaded", "count", uploaded)

	rec.Status = photo.StatusReady
	rec.Width = &width
	rec.Height = &height
	rec.BlurDataURL = &blur
	rec.Exif = exifRec
	if err := p.Status.save(ctx, rec); err != nil {
		// observability loss only: derivatives are in place and a replay
		// of the message will skip once a later write lands
		logger.Error("mark ready abandoned", "err", err)
	}
	return Processed, nil
}

// download stages the original under the read timeout.
func (p *Pipeline) download(ctx context.Context, key, dst string) error {
	if p.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.ReadTimeout)
		defer cancel()
	}
	rc, err := p.Blobs.GetStream(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// uploadDerivatives walks the workspace and uploads every regular file
// with a recognized derivative extension, skipping the staged original and
// any intermediate artifacts silently.
func (p *Pipeline) uploadDerivatives(ctx context.Context, photoID, workspace, originalName string) (int, error) {
	entries, err := os.ReadDir(workspace)
	if err != nil {
		return 0, fmt.Errorf("read workspace: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || entry.Name() == originalName {
			continue
		}
		contentType, ok := derive.ContentType(entry.Name())
		if !ok {
			continue
		}
		f, err := os.Open(filepath.Join(workspace, entry.Name()))
		if err != nil {
			return uploaded, fmt.Errorf("open derivative %s: %w", entry.Name(), err)
		}
		key := fmt.Sprintf("processed/%s/%s", photoID, entry.Name())
		err = p.Blobs.Save(ctx, key, f, contentType)
		f.Close()
		if err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded++
	}
	return uploaded, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
