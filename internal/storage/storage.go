// Package storage provides a uniform blob capability over either a local
// filesystem tree or an S3-compatible object store. Both backends satisfy
// the same behavioral contract: ErrNotFound for absent keys on reads,
// empty results (not errors) for absent prefixes on List and Delete, and
// keys that are always relative to the storage root.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned by Get and GetStream when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Store is the capability surface the pipeline reads and writes through.
type Store interface {
	// Save writes or overwrites the object at key, creating any missing
	// intermediate path segments.
	Save(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes every object under keyPrefix. Nothing matching is a
	// no-op, not an error.
	Delete(ctx context.Context, keyPrefix string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns root-relative keys under keyPrefix, empty if absent.
	List(ctx context.Context, keyPrefix string) ([]string, error)
}

// underPrefix reports whether key is keyPrefix itself or lies beneath it as
// a path. The boundary is a whole segment: "processed/photo-1" does not
// cover "processed/photo-10/300w.webp".
func underPrefix(key, keyPrefix string) bool {
	return key == keyPrefix || strings.HasPrefix(key, keyPrefix+"/")
}

// ValidateKey rejects keys that could escape the storage root once joined
// onto a backend path. Every backend must call it before touching the key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage: empty key")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("storage: absolute key %q", key)
	}
	if strings.ContainsRune(key, '\\') || strings.ContainsRune(key, 0) {
		return fmt.Errorf("storage: illegal character in key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" {
			return fmt.Errorf("storage: empty path segment in key %q", key)
		}
		if seg == "." || seg == ".." {
			return fmt.Errorf("storage: traversal segment in key %q", key)
		}
	}
	return nil
}
