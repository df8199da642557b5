package photo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumapix/darkroom/pkg/schema"
)

// PGStore reads and upserts photo records in Postgres. The schema is owned
// by the upload service; this is only the pipeline's consumption edge.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) FindByID(ctx context.Context, id uuid.UUID) (*Photo, error) {
	const q = `SELECT status, width, height, blur_data_url, exif_data, updated_at
		FROM photos WHERE id = $1`

	p := Photo{ID: id}
	var exifRaw []byte
	err := s.pool.QueryRow(ctx, q, id).Scan(&p.Status, &p.Width, &p.Height, &p.BlurDataURL, &exifRaw, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query photo %s: %w", id, err)
	}
	if len(exifRaw) > 0 {
		var rec schema.ExifRecord
		if err := json.Unmarshal(exifRaw, &rec); err != nil {
			return nil, fmt.Errorf("decode exif for photo %s: %w", id, err)
		}
		p.Exif = &rec
	}
	return &p, nil
}

func (s *PGStore) Save(ctx context.Context, p *Photo) error {
	const q = `INSERT INTO photos (id, status, width, height, blur_data_url, exif_data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			blur_data_url = EXCLUDED.blur_data_url,
			exif_data = EXCLUDED.exif_data,
			updated_at = EXCLUDED.updated_at`

	var exifRaw []byte
	if p.Exif != nil {
		b, err := json.Marshal(p.Exif)
		if err != nil {
			return fmt.Errorf("encode exif for photo %s: %w", p.ID, err)
		}
		exifRaw = b
	}

	if _, err := s.pool.Exec(ctx, q, p.ID, p.Status, p.Width, p.Height, p.BlurDataURL, exifRaw, p.UpdatedAt); err != nil {
		return fmt.Errorf("save photo %s: %w", p.ID, err)
	}
	return nil
}
