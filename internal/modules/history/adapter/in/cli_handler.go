package in

import (
	"context"

	"tempo/internal/modules/history/dto"
	historyin "tempo/internal/modules/history/port/in"
)

type CLIHandler struct {
	usecase historyin.Usecase
}

func NewCLIHandler(usecase historyin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) ListRecords(ctx context.Context) ([]dto.RecordOutput, error) {
	return h.usecase.ListRecords(ctx)
}

func (h CLIHandler) EditRecord(ctx context.Context, id string, title, notes *string) (dto.MutationOutput, error) {
	return h.usecase.UpdateRecord(ctx, dto.UpdateRecordInput{ID: id, Title: title, Notes: notes})
}

func (h CLIHandler) DeleteRecord(ctx context.Context, id string) (dto.MutationOutput, error) {
	return h.usecase.DeleteRecord(ctx, id)
}

func (h CLIHandler) SetGoal(ctx context.Context, name, category string, targetWeekMs int64) (dto.MutationOutput, error) {
	return h.usecase.CreateGoal(ctx, dto.CreateGoalInput{Name: name, Category: category, TargetWeekMs: targetWeekMs})
}

func (h CLIHandler) ListGoals(ctx context.Context) ([]dto.GoalOutput, error) {
	return h.usecase.ListGoals(ctx)
}

func (h CLIHandler) DeleteGoal(ctx context.Context, id string) (dto.MutationOutput, error) {
	return h.usecase.DeleteGoal(ctx, id)
}
