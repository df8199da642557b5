package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"simple key", "originals/abc/original.jpg", false},
		{"single segment", "file.txt", false},
		{"dotted filename", "processed/abc/600w.webp", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"parent traversal", "../secrets", true},
		{"embedded traversal", "originals/../../etc/passwd", true},
		{"dot segment", "originals/./abc", true},
		{"empty segment", "originals//abc", true},
		{"trailing slash", "originals/abc/", true},
		{"backslash", "originals\\abc", true},
		{"nul byte", "originals/a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestUnderPrefix(t *testing.T) {
	tests := []struct {
		key    string
		prefix string
		want   bool
	}{
		{"processed/photo-1/300w.webp", "processed/photo-1", true},
		{"processed/photo-1/300w.webp", "processed", true},
		{"processed/photo-1", "processed/photo-1", true},
		{"processed/photo-10/300w.webp", "processed/photo-1", false},
		{"processed/photo-1.bak/300w.webp", "processed/photo-1", false},
		{"originals/photo-1/original.jpg", "processed/photo-1", false},
	}

	for _, tt := range tests {
		if got := underPrefix(tt.key, tt.prefix); got != tt.want {
			t.Errorf("underPrefix(%q, %q) = %v, want %v", tt.key, tt.prefix, got, tt.want)
		}
	}
}

func TestLocalContract(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	runContract(t, store)
}

// runContract asserts the behavior every backend must share. The S3
// backend follows the same contract; exercising it needs a live bucket,
// so only the local backend runs it in unit tests.
func runContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	const key = "originals/photo-1/original.jpg"
	payload := []byte("jpeg bytes")

	if err := store.Save(ctx, key, bytes.NewReader(payload), "image/jpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get returned %q, want %q", got, payload)
	}

	rc, err := store.GetStream(ctx, key)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	streamed, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !bytes.Equal(streamed, payload) {
		t.Fatalf("GetStream returned %q, want %q", streamed, payload)
	}

	ok, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatal("Exists = false for a saved key")
	}

	// overwrite is not an error
	replacement := []byte("newer jpeg bytes")
	if err := store.Save(ctx, key, bytes.NewReader(replacement), "image/jpeg"); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, err = store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if !bytes.Equal(got, replacement) {
		t.Fatalf("Get after overwrite returned %q, want %q", got, replacement)
	}

	// reads of absent keys surface the sentinel
	if _, err := store.Get(ctx, "originals/photo-1/missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing key: got %v, want ErrNotFound", err)
	}
	if _, err := store.GetStream(ctx, "originals/photo-1/missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetStream missing key: got %v, want ErrNotFound", err)
	}
	ok, err = store.Exists(ctx, "originals/photo-1/missing.jpg")
	if err != nil {
		t.Fatalf("Exists missing key: %v", err)
	}
	if ok {
		t.Fatal("Exists = true for a missing key")
	}

	// list returns root-relative keys under the prefix
	if err := store.Save(ctx, "processed/photo-1/300w.webp", strings.NewReader("w"), "image/webp"); err != nil {
		t.Fatalf("Save derivative: %v", err)
	}
	if err := store.Save(ctx, "processed/photo-1/300w.avif", strings.NewReader("a"), "image/avif"); err != nil {
		t.Fatalf("Save derivative: %v", err)
	}
	keys, err := store.List(ctx, "processed/photo-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(keys)
	want := []string{"processed/photo-1/300w.avif", "processed/photo-1/300w.webp"}
	if len(keys) != len(want) {
		t.Fatalf("List = %v, want %v", keys, want)
	}
	for i := range keys {
		if keys[i] != want[i] {
			t.Fatalf("List = %v, want %v", keys, want)
		}
	}

	// a sibling whose name shares the string prefix is not under it
	if err := store.Save(ctx, "processed/photo-10/300w.webp", strings.NewReader("s"), "image/webp"); err != nil {
		t.Fatalf("Save sibling: %v", err)
	}
	keys, err = store.List(ctx, "processed/photo-1")
	if err != nil {
		t.Fatalf("List with sibling: %v", err)
	}
	for _, k := range keys {
		if strings.HasPrefix(k, "processed/photo-10/") {
			t.Fatalf("List leaked sibling key %s", k)
		}
	}
	if len(keys) != 2 {
		t.Fatalf("List with sibling = %v, want the 2 photo-1 keys", keys)
	}

	// absent prefixes list empty, not error
	keys, err = store.List(ctx, "processed/no-such-photo")
	if err != nil {
		t.Fatalf("List absent prefix: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("List absent prefix = %v, want empty", keys)
	}

	// prefix delete removes everything under it
	if err := store.Delete(ctx, "processed/photo-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	keys, err = store.List(ctx, "processed/photo-1")
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("List after delete = %v, want empty", keys)
	}

	// the sibling survives the prefix delete
	ok, err = store.Exists(ctx, "processed/photo-10/300w.webp")
	if err != nil {
		t.Fatalf("Exists sibling: %v", err)
	}
	if !ok {
		t.Fatal("prefix delete removed a sibling's object")
	}

	// deleting an absent prefix is a no-op
	if err := store.Delete(ctx, "processed/no-such-photo"); err != nil {
		t.Fatalf("Delete absent prefix: %v", err)
	}

	// other prefixes are untouched
	ok, err = store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists after unrelated delete: %v", err)
	}
	if !ok {
		t.Fatal("unrelated prefix was deleted")
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "../outside.txt", strings.NewReader("x"), "text/plain"); err == nil {
		t.Fatal("Save accepted a traversal key")
	}
	if _, err := store.Get(ctx, "/etc/passwd"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on absolute key: got %v, want validation error", err)
	}
	if err := store.Delete(ctx, ".."); err == nil {
		t.Fatal("Delete accepted a traversal prefix")
	}
	if _, err := store.List(ctx, "a//b"); err == nil {
		t.Fatal("List accepted an empty segment")
	}
}
