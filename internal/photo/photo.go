package photo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lumapix/darkroom/pkg/schema"
)

// Status is the processing lifecycle state of a photo record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// ErrNotFound is returned by Store.FindByID when no record exists for the id.
var ErrNotFound = errors.New("photo: record not found")

// Photo is the metadata record the pipeline reads and conditionally
// rewrites. The record is owned by the upload service; only the fields the
// pipeline produces are modelled here.
type Photo struct {
	ID          uuid.UUID
	Status      Status
	Width       *int
	Height      *int
	BlurDataURL *string
	Exif        *schema.ExifRecord
	UpdatedAt   time.Time
}

// Store is the read/write contract against the external metadata store.
// Save upserts by id; last write wins.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Photo, error)
	Save(ctx context.Context, p *Photo) error
}
