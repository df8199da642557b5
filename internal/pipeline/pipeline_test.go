package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumapix/darkroom/internal/photo"
	"github.com/lumapix/darkroom/internal/storage"
	"github.com/lumapix/darkroom/pkg/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBlobs struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	streamCalls  int
	saveErr      error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (b *fakeBlobs) Save(ctx context.Context, key string, r io.Reader, contentType string) error {
	if b.saveErr != nil && strings.HasPrefix(key, "processed/") {
		return b.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.contentTypes[key] = contentType
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return data, nil
}

func (b *fakeBlobs) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	b.streamCalls++
	b.mu.Unlock()
	data, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlobs) Delete(ctx context.Context, keyPrefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.objects {
		if strings.HasPrefix(k, keyPrefix) {
			delete(b.objects, k)
			delete(b.contentTypes, k)
		}
	}
	return nil
}

func (b *fakeBlobs) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

func (b *fakeBlobs) List(ctx context.Context, keyPrefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, keyPrefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// fakeGen writes derivative files plus one unrecognized leftover into the
// workspace, mimicking the real encoder's output directory.
type fakeGen struct {
	deriveErr error
	blurErr   error
	calls     int
}

func (g *fakeGen) Derivatives(ctx context.Context, srcPath, outDir string) ([]string, int, int, error) {
	g.calls++
	if g.deriveErr != nil {
		return nil, 0, 0, g.deriveErr
	}
	var paths []string
	for _, name := range []string{"300w.webp", "300w.avif", "600w.webp", "600w.avif"} {
		p := filepath.Join(outDir, name)
		if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
			return nil, 0, 0, err
		}
		paths = append(paths, p)
	}
	// intermediate artifact the uploader must ignore
	if err := os.WriteFile(filepath.Join(outDir, "stage-600w.png"), []byte("stage"), 0o644); err != nil {
		return nil, 0, 0, err
	}
	return paths, 800, 600, nil
}

func (g *fakeGen) BlurPlaceholder(ctx context.Context, srcPath string) (string, error) {
	if g.blurErr != nil {
		return "", g.blurErr
	}
	return "data:image/jpeg;base64,dGlueQ==", nil
}

type flakyStore struct {
	*photo.MemoryStore
	failSaves int
	saveCalls int
}

func (s *flakyStore) Save(ctx context.Context, p *photo.Photo) error {
	s.saveCalls++
	if s.saveCalls <= s.failSaves {
		return errors.New("db unavailable")
	}
	return s.MemoryStore.Save(ctx, p)
}

func testExif(path string) *schema.ExifRecord {
	maker := "Canon"
	return &schema.ExifRecord{CameraMake: &maker}
}

func newTestPipeline(t *testing.T, photos photo.Store, blobs storage.Store, gen Generator) *Pipeline {
	t.Helper()
	return &Pipeline{
		Photos:        photos,
		Blobs:         blobs,
		Gen:           gen,
		Exif:          testExif,
		Status:        &StatusWriter{Store: photos, Backoff: time.Millisecond, Logger: quietLogger()},
		WorkspaceRoot: t.TempDir(),
		ReadTimeout:   time.Second,
		Logger:        quietLogger(),
	}
}

func seedPhoto(t *testing.T, photos photo.Store, blobs *fakeBlobs) (uuid.UUID, schema.JobMessage) {
	t.Helper()
	id := uuid.New()
	if err := photos.Save(context.Background(), &photo.Photo{ID: id, Status: photo.StatusProcessing}); err != nil {
		t.Fatalf("seed photo: %v", err)
	}
	key := fmt.Sprintf("originals/%s/original.jpg", id)
	if err := blobs.Save(context.Background(), key, strings.NewReader("jpeg bytes"), "image/jpeg"); err != nil {
		t.Fatalf("seed original: %v", err)
	}
	return id, schema.JobMessage{PhotoID: id.String(), OriginalKey: key}
}

func assertWorkspaceEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read workspace root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace not cleaned up, %d entries remain", len(entries))
	}
}

func TestRunSuccess(t *testing.T) {
	photos := photo.NewMemoryStore()
	blobs := newFakeBlobs()
	p := newTestPipeline(t, photos, blobs, &fakeGen{})
	id, msg := seedPhoto(t, photos, blobs)

	outcome, err := p.Run(context.Background(), msg, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != Processed {
		t.Fatalf("outcome = %v, want Processed", outcome)
	}

	for name, want := range map[string]string{
		"300w.webp": "image/webp",
		"300w.avif": "image/avif",
		"600w.webp": "image/webp",
		"600w.avif": "image/avif",
	} {
		key := fmt.Sprintf("processed/%s/%s", id, name)
		if _, ok := blobs.objects[key]; !ok {
			t.Errorf("derivative %s was not uploaded", key)
		}
		if ct := blobs.contentTypes[key]; ct != want {
			t.Errorf("derivative %s content type = %q, want %q", key, ct, want)
		}
	}
	for _, name := range []string{"original.jpg", "stage-600w.png"} {
		key := fmt.Sprintf("processed/%s/%s", id, name)
		if _, ok := blobs.objects[key]; ok {
			t.Errorf("%s must not be uploaded", key)
		}
	}

	rec, err := photos.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if rec.Status != photo.StatusReady {
		t.Fatalf("status = %q, want %q", rec.Status, photo.StatusReady)
	}
	if rec.Width == nil || *rec.Width != 800 || rec.Height == nil || *rec.Height != 600 {
		t.Errorf("dimensions not recorded: %v x %v", rec.Width, rec.Height)
	}
	if rec.BlurDataURL == nil || !strings.HasPrefix(*rec.BlurDataURL, "data:image/jpeg;base64,") {
		t.Errorf("blur placeholder not recorded: %v", rec.BlurDataURL)
	}
	if rec.Exif == nil || rec.Exif.CameraMake == nil || *rec.Exif.CameraMake != "Canon" {
		t.Errorf("exif not recorded: %+v", rec.Exif)
	}

	assertWorkspaceEmpty(t, p.WorkspaceRoot)
}

func TestRunSkipsMissingRecord(t *testing.T) {
	photos := photo.NewMemoryStore()
	blobs := newFakeBlobs()
	gen := &fakeGen{}
	p := newTestPipeline(t, photos, blobs, gen)

	msg := schema.JobMessage{PhotoID: uuid.NewString(), OriginalKey: "originals/x/original.jpg"}
	outcome, err := p.Run(context.Background(), msg, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != SkippedMissing {
		t.Fatalf("outcome = %v, want SkippedMissing", outcome)
	}
	if gen.calls != 0 {
		t.Fatal("generator must not run for a missing record")
	}
	if blobs.streamCalls != 0 {
		t.Fatal("nothing should be downloaded for a missing record")
	}
}

func TestRunSkipsReadyRecord(t *testing.T) {
	photos := photo.NewMemoryStore()
	blobs := newFakeBlobs()
	gen := &fakeGen{}
	p := newTestPipeline(t, photos, blobs, gen)

	id := uuid.New()
	if err := photos.Save(context.Background(), &photo.Photo{ID: id, Status: photo.StatusReady}); err != nil {
		t.Fatalf("seed photo: %v", err)
	}

	outcome, err := p.Run(context.Background(), schema.JobMessage{PhotoID: id.String(), OriginalKey: "originals/x/original.jpg"}, 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != SkippedDone {
		t.Fatalf("outcome = %v, want SkippedDone", outcome)
	}
	if gen.calls != 0 || blobs.streamCalls != 0 {
		t.Fatal("redelivery of a completed job must do no work")
	}
	assertWorkspaceEmpty(t, p.WorkspaceRoot)
}

func TestRunBadPhotoID(t *testing.T) {
	p := newTestPipeline(t, photo.NewMemoryStore(), newFakeBlobs(), &fakeGen{})
	_, err := p.Run(context.Background(), schema.JobMessage{PhotoID: "not-a-uuid"}, 1)
	if err == nil {
		t.Fatal("expected error for unparsable photo id")
	}
	if !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("got %v, want wrapped ErrInvalidJob so callers drop the message", err)
	}
}

func TestRunMissingOriginal(t *testing.T) {
	photos := photo.NewMemoryStore()
	blobs := newFakeBlobs()
	p := newTestPipeline(t, photos, blobs, &fakeGen{})

	id := uuid.New()
	if err := photos.Save(context.Background(), &photo.Photo{ID: id, Status: photo.StatusProcessing}); err != nil {
		t.Fatalf("seed photo: %v", err)
	}

	_, err := p.Run(context.Background(), schema.JobMessage{PhotoID: id.String(), OriginalKey: "originals/gone/original.jpg"}, 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Run: got %v, want wrapped ErrNotFound", err)
	}
	assertWorkspaceEmpty(t, p.WorkspaceRoot)
}

func TestRunGeneratorFailure(t *testing.T) {
	photos := photo.NewMemoryStore()
	blobs := newFakeBlobs()
	gen := &fakeGen{deriveErr: errors.New("cwebp exited 1")}
	p := newTestPipeline(t, photos, blobs, gen)
	id, msg := seedPhoto(t, photos, blobs)

	if _, err := p.Run(context.Background(), msg, 1); err == nil {
		t.Fatal("expected generator failure to propagate")
	}

	keys, _ := blobs.List(context.Background(), fmt.Sprintf("processed/%s", id))
	if len(keys) != 0 {
		t.Fatalf("no derivatives should be uploaded on failure, got %v", keys)
	}
	rec, err := photos.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if rec.Status != photo.StatusProcessing {
		t.Fatalf("record status changed to %q on pipeline failure", rec.Status)
	}
	assertWorkspaceEmpty(t, p.WorkspaceRoot)
}

func TestRunUploadFailure(t *testing.T) {
	photos := photo.NewMemoryStore()
	blobs := newFakeBlobs()
	blobs.saveErr = errors.New("connection reset")
	p := newTestPipeline(t, photos, blobs, &fakeGen{})
	id, msg := seedPhoto(t, photos, blobs)

	if _, err := p.Run(context.Background(), msg, 1); err == nil {
		t.Fatal("expected upload failure to propagate")
	}
	rec, err := photos.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if rec.Status != photo.StatusProcessing {
		t.Fatalf("record status changed to %q on upload failure", rec.Status)
	}
	assertWorkspaceEmpty(t, p.WorkspaceRoot)
}

func TestRunMarkReadyWriteFailureIsSwallowed(t *testing.T) {
	photos := &flakyStore{MemoryStore: photo.NewMemoryStore(), failSaves: 100}
	blobs := newFakeBlobs()
	p := newTestPipeline(t, photos, blobs, &fakeGen{})
	_, msg := seedPhoto(t, photos.MemoryStore, blobs)

	outcome, err := p.Run(context.Background(), msg, 1)
	if err != nil {
		t.Fatalf("a lost status write must not fail the job: %v", err)
	}
	if outcome != Processed {
		t.Fatalf("outcome = %v, want Processed", outcome)
	}
	if photos.saveCalls != 3 {
		t.Fatalf("save attempts = %d, want 3", photos.saveCalls)
	}
	assertWorkspaceEmpty(t, p.WorkspaceRoot)
}
