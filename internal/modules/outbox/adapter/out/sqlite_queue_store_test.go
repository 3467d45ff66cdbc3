package out_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"tempo/internal/modules/outbox/adapter/out"
	"tempo/internal/modules/outbox/domain"
)

func TestQueueStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "tempo.db")
	ctx := context.Background()

	store, err := out.NewSQLiteQueueStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	item := domain.Item{
		LocalID:    "local-abc",
		OpType:     domain.OpPut,
		Collection: "sessions",
		Key:        "local-abc",
		Payload:    json.RawMessage(`{"title":"deep work"}`),
		CreatedAt:  time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC),
	}
	stored, err := store.Append(ctx, item)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if stored.Seq == 0 {
		t.Fatal("seq not assigned")
	}

	// A fresh handle on the same file must see the queued item: the
	// queue is durable across process restarts.
	reopened, err := out.NewSQLiteQueueStore(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	items, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	got := items[0]
	if got.LocalID != item.LocalID || got.OpType != item.OpType || string(got.Payload) != string(item.Payload) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(item.CreatedAt) {
		t.Fatalf("created at mismatch: %v", got.CreatedAt)
	}

	if err := reopened.Remove(ctx, stored.Seq); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if count, _ := reopened.Len(ctx); count != 0 {
		t.Fatalf("queue not empty after remove: %d", count)
	}
}
