package out

import (
	"context"
	"encoding/json"

	"tempo/internal/modules/outbox/domain"
)

type QueueStore interface {
	Append(ctx context.Context, item domain.Item) (domain.Item, error)
	List(ctx context.Context) ([]domain.Item, error)
	Remove(ctx context.Context, seq int64) error
	Len(ctx context.Context) (int, error)
}

// RemoteApplier replays a queued mutation against the remote store.
type RemoteApplier interface {
	Put(ctx context.Context, collection, key string, body json.RawMessage) error
	Delete(ctx context.Context, collection, key string) error
}
