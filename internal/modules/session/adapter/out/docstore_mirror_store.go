package out

import (
	"context"
	"encoding/json"
	"fmt"

	"tempo/internal/modules/session/domain"
	sessionout "tempo/internal/modules/session/port/out"
	"tempo/internal/platform/docstore"
)

// DocStoreMirrorStore keeps the single mutable active-session record in
// the remote document store, keyed by user identity.
type DocStoreMirrorStore struct {
	client *docstore.Client
}

func NewDocStoreMirrorStore(client *docstore.Client) sessionout.MirrorStore {
	return &DocStoreMirrorStore{client: client}
}

func (s *DocStoreMirrorStore) Save(ctx context.Context, active domain.ActiveSession) error {
	body, err := json.Marshal(active)
	if err != nil {
		return fmt.Errorf("encode mirror: %w", err)
	}
	_, err = s.client.Put(ctx, docstore.Document{
		Collection: domain.MirrorCollection,
		Key:        active.UserID,
		Body:       body,
	})
	return err
}

func (s *DocStoreMirrorStore) Load(ctx context.Context, userID string) (domain.ActiveSession, error) {
	doc, err := s.client.Get(ctx, domain.MirrorCollection, userID)
	if err != nil {
		return domain.ActiveSession{}, err
	}
	var active domain.ActiveSession
	if err := json.Unmarshal(doc.Body, &active); err != nil {
		return domain.ActiveSession{}, fmt.Errorf("decode mirror: %w", err)
	}
	return active, nil
}

func (s *DocStoreMirrorStore) Clear(ctx context.Context, userID string) error {
	_, err := s.client.Delete(ctx, domain.MirrorCollection, userID)
	return err
}
