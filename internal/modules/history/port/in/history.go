package in

import (
	"context"

	"tempo/internal/modules/history/dto"
)

// Usecase is the inbound surface of the history module. Mutations are
// optimistic: the returned output reflects the local projection, and
// Queued reports whether the remote write was deferred to the outbox.
type Usecase interface {
	CreateRecord(ctx context.Context, in dto.CreateRecordInput) (dto.MutationOutput, error)
	UpdateRecord(ctx context.Context, in dto.UpdateRecordInput) (dto.MutationOutput, error)
	DeleteRecord(ctx context.Context, id string) (dto.MutationOutput, error)
	ListRecords(ctx context.Context) ([]dto.RecordOutput, error)

	CreateGoal(ctx context.Context, in dto.CreateGoalInput) (dto.MutationOutput, error)
	DeleteGoal(ctx context.Context, id string) (dto.MutationOutput, error)
	ListGoals(ctx context.Context) ([]dto.GoalOutput, error)
}
