package photo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryStoreFindMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.FindByID(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreUpsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	if err := store.Save(ctx, &Photo{ID: id, Status: StatusProcessing}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, &Photo{ID: id, Status: StatusReady}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := store.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if rec.Status != StatusReady {
		t.Fatalf("status = %q, want %q", rec.Status, StatusReady)
	}

	// the returned record is a copy; mutating it must not touch the store
	rec.Status = StatusError
	again, err := store.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if again.Status != StatusReady {
		t.Fatal("FindByID returned a shared reference")
	}
}
