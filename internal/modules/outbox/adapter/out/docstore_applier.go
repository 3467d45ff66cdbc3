package out

import (
	"context"
	"encoding/json"

	outboxout "tempo/internal/modules/outbox/port/out"
	"tempo/internal/platform/docstore"
)

// DocStoreApplier replays queued mutations through the live docstore
// client, whole-record writes only.
type DocStoreApplier struct {
	client *docstore.Client
}

func NewDocStoreApplier(client *docstore.Client) outboxout.RemoteApplier {
	return &DocStoreApplier{client: client}
}

func (a *DocStoreApplier) Put(ctx context.Context, collection, key string, body json.RawMessage) error {
	_, err := a.client.Put(ctx, docstore.Document{Collection: collection, Key: key, Body: body})
	return err
}

func (a *DocStoreApplier) Delete(ctx context.Context, collection, key string) error {
	_, err := a.client.Delete(ctx, collection, key)
	return err
}
