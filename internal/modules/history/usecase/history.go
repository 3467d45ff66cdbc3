package usecase

import (
	"context"

	"tempo/internal/modules/history/domain"
	"tempo/internal/modules/history/dto"
	historyin "tempo/internal/modules/history/port/in"
	"tempo/internal/modules/history/service"
)

type Interactor struct {
	coord *service.Coordinator
}

func NewInteractor(coord *service.Coordinator) historyin.Usecase {
	return &Interactor{coord: coord}
}

func (i *Interactor) CreateRecord(ctx context.Context, in dto.CreateRecordInput) (dto.MutationOutput, error) {
	rec := domain.Record{
		Title:        in.Title,
		Category:     in.Category,
		Notes:        in.Notes,
		Breaks:       in.Breaks,
		StartedAt:    in.StartedAt,
		EndedAt:      in.EndedAt,
		TotalFocusMs: in.TotalFocusMs,
		TotalBreakMs: in.TotalBreakMs,
		LocalRef:     in.LocalRef,
	}
	out, err := i.coord.Apply(ctx, domain.Mutation{Kind: domain.MutationCreate, Record: &rec})
	if err != nil {
		return dto.MutationOutput{}, err
	}
	return dto.MutationOutput{ID: out.ID, Queued: out.Queued}, nil
}

func (i *Interactor) UpdateRecord(ctx context.Context, in dto.UpdateRecordInput) (dto.MutationOutput, error) {
	patch := domain.RecordPatch{Title: in.Title, Notes: in.Notes}
	out, err := i.coord.Apply(ctx, domain.Mutation{Kind: domain.MutationUpdate, ID: in.ID, Patch: &patch})
	if err != nil {
		return dto.MutationOutput{}, err
	}
	return dto.MutationOutput{ID: out.ID, Queued: out.Queued}, nil
}

func (i *Interactor) DeleteRecord(ctx context.Context, id string) (dto.MutationOutput, error) {
	out, err := i.coord.Apply(ctx, domain.Mutation{Kind: domain.MutationDelete, ID: id})
	if err != nil {
		return dto.MutationOutput{}, err
	}
	return dto.MutationOutput{ID: out.ID, Queued: out.Queued}, nil
}

func (i *Interactor) ListRecords(ctx context.Context) ([]dto.RecordOutput, error) {
	recs, err := i.coord.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.RecordOutput, 0, len(recs))
	for _, rec := range recs {
		out = append(out, dto.RecordOutput{
			ID:           rec.ID,
			Title:        rec.Title,
			Category:     rec.Category,
			Notes:        rec.Notes,
			StartedAt:    rec.StartedAt,
			EndedAt:      rec.EndedAt,
			TotalFocusMs: rec.TotalFocusMs,
			TotalBreakMs: rec.TotalBreakMs,
			Pending:      rec.Pending,
		})
	}
	return out, nil
}

func (i *Interactor) CreateGoal(ctx context.Context, in dto.CreateGoalInput) (dto.MutationOutput, error) {
	g := domain.Goal{Name: in.Name, Category: in.Category, TargetWeekMs: in.TargetWeekMs}
	out, err := i.coord.Apply(ctx, domain.Mutation{Kind: domain.MutationCreate, Goal: &g})
	if err != nil {
		return dto.MutationOutput{}, err
	}
	return dto.MutationOutput{ID: out.ID, Queued: out.Queued}, nil
}

func (i *Interactor) DeleteGoal(ctx context.Context, id string) (dto.MutationOutput, error) {
	out, err := i.coord.Apply(ctx, domain.Mutation{Kind: domain.MutationDelete, Collection: domain.GoalCollection, ID: id})
	if err != nil {
		return dto.MutationOutput{}, err
	}
	return dto.MutationOutput{ID: out.ID, Queued: out.Queued}, nil
}

func (i *Interactor) ListGoals(ctx context.Context) ([]dto.GoalOutput, error) {
	goals, err := i.coord.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.GoalOutput, 0, len(goals))
	for _, g := range goals {
		out = append(out, dto.GoalOutput{
			ID:           g.ID,
			Name:         g.Name,
			Category:     g.Category,
			TargetWeekMs: g.TargetWeekMs,
			CreatedAt:    g.CreatedAt,
			Pending:      g.Pending,
		})
	}
	return out, nil
}
