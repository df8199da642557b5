// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the infrastructure endpoints both binaries share. The
// derivative ladder itself is fixed by contract and not configurable.
type Config struct {
	DatabaseURL string

	StorageBackend   string // "local" or "s3"
	LocalStoragePath string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string

	NATSURL     string
	JobSubject  string
	StreamName  string
	Durable     string
	Concurrency int
	MaxDeliver  int

	WorkspaceDir   string
	StorageTimeout time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:      getenv("DATABASE_URL", ""),
		StorageBackend:   getenv("STORAGE_BACKEND", "local"),
		LocalStoragePath: getenv("LOCAL_STORAGE_PATH", "./data/photos"),
		S3Bucket:         getenv("S3_BUCKET", ""),
		S3Region:         getenv("S3_REGION", "us-east-1"),
		S3Endpoint:       getenv("S3_ENDPOINT", ""),
		NATSURL:          getenv("NATS_URL", "nats://127.0.0.1:4222"),
		JobSubject:       getenv("JOB_SUBJECT", "photos.process"),
		StreamName:       getenv("JOB_STREAM", "PHOTOS"),
		Durable:          getenv("JOB_DURABLE", "derivative-workers"),
		WorkspaceDir:     getenv("WORKSPACE_DIR", ""),
	}

	switch cfg.StorageBackend {
	case "local":
		// nothing extra required
	case "s3":
		if cfg.S3Bucket == "" {
			return Config{}, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_BACKEND %q (expected local or s3)", cfg.StorageBackend)
	}

	concurrency, err := parsePositiveInt(getenv("WORKER_CONCURRENCY", "2"), "WORKER_CONCURRENCY")
	if err != nil {
		return Config{}, err
	}
	cfg.Concurrency = concurrency

	maxDeliver, err := parsePositiveInt(getenv("JOB_MAX_DELIVER", "5"), "JOB_MAX_DELIVER")
	if err != nil {
		return Config{}, err
	}
	cfg.MaxDeliver = maxDeliver

	timeoutSecs, err := parsePositiveInt(getenv("STORAGE_TIMEOUT_SECONDS", "30"), "STORAGE_TIMEOUT_SECONDS")
	if err != nil {
		return Config{}, err
	}
	cfg.StorageTimeout = time.Duration(timeoutSecs) * time.Second

	return cfg, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
