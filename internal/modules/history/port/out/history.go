package out

import (
	"context"

	"tempo/internal/modules/history/domain"
)

// RecordCache is the device-local projection of finalized sessions and
// goals. It is the read model the UI lists from and the snapshot source
// the coordinator rolls back to.
type RecordCache interface {
	UpsertRecord(ctx context.Context, rec domain.Record) error
	RemoveRecord(ctx context.Context, id string) error
	GetRecord(ctx context.Context, id string) (domain.Record, error)
	ListRecords(ctx context.Context, userID string) ([]domain.Record, error)
	ReplaceRecords(ctx context.Context, userID string, recs []domain.Record) error

	UpsertGoal(ctx context.Context, g domain.Goal) error
	RemoveGoal(ctx context.Context, id string) error
	ListGoals(ctx context.Context, userID string) ([]domain.Goal, error)
}

// RecordStore is the remote, authoritative store. PutRecord returns the
// record as the server stored it so the caller can reconcile ids.
type RecordStore interface {
	PutRecord(ctx context.Context, rec domain.Record) (domain.Record, error)
	DeleteRecord(ctx context.Context, id string) error
	PutGoal(ctx context.Context, g domain.Goal) (domain.Goal, error)
	DeleteGoal(ctx context.Context, id string) error
}
