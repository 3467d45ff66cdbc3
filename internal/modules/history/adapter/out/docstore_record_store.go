package out

import (
	"context"
	"encoding/json"
	"fmt"

	"tempo/internal/modules/history/domain"
	historyout "tempo/internal/modules/history/port/out"
	"tempo/internal/platform/docstore"
)

// DocStoreRecordStore persists finalized sessions and goals through the
// remote document store.
type DocStoreRecordStore struct {
	client *docstore.Client
}

func NewDocStoreRecordStore(client *docstore.Client) historyout.RecordStore {
	return &DocStoreRecordStore{client: client}
}

func (s *DocStoreRecordStore) PutRecord(ctx context.Context, rec domain.Record) (domain.Record, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode record: %w", err)
	}
	stored, err := s.client.Put(ctx, docstore.Document{
		Collection: domain.SessionCollection,
		Key:        rec.ID,
		Body:       body,
	})
	if err != nil {
		return domain.Record{}, err
	}
	var confirmed domain.Record
	if err := json.Unmarshal(stored.Body, &confirmed); err != nil {
		return domain.Record{}, fmt.Errorf("decode stored record: %w", err)
	}
	confirmed.ID = stored.Key
	return confirmed, nil
}

func (s *DocStoreRecordStore) DeleteRecord(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, domain.SessionCollection, id)
	return err
}

func (s *DocStoreRecordStore) PutGoal(ctx context.Context, g domain.Goal) (domain.Goal, error) {
	body, err := json.Marshal(g)
	if err != nil {
		return domain.Goal{}, fmt.Errorf("encode goal: %w", err)
	}
	stored, err := s.client.Put(ctx, docstore.Document{
		Collection: domain.GoalCollection,
		Key:        g.ID,
		Body:       body,
	})
	if err != nil {
		return domain.Goal{}, err
	}
	var confirmed domain.Goal
	if err := json.Unmarshal(stored.Body, &confirmed); err != nil {
		return domain.Goal{}, fmt.Errorf("decode stored goal: %w", err)
	}
	confirmed.ID = stored.Key
	return confirmed, nil
}

func (s *DocStoreRecordStore) DeleteGoal(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, domain.GoalCollection, id)
	return err
}
