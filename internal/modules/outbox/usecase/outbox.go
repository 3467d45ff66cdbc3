package usecase

import (
	"context"

	"tempo/internal/modules/outbox/domain"
	"tempo/internal/modules/outbox/dto"
	outboxin "tempo/internal/modules/outbox/port/in"
	"tempo/internal/modules/outbox/service"
)

type Interactor struct {
	svc *service.OutboxService
}

func NewInteractor(svc *service.OutboxService) outboxin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Enqueue(ctx context.Context, input dto.EnqueueInput) (dto.ItemOutput, error) {
	stored, err := i.svc.Enqueue(ctx, domain.Item{
		LocalID:    input.LocalID,
		OpType:     domain.OpType(input.OpType),
		Collection: input.Collection,
		Key:        input.Key,
		Payload:    input.Payload,
	})
	if err != nil {
		return dto.ItemOutput{}, err
	}
	return toOutput(stored), nil
}

func (i *Interactor) Drain(ctx context.Context) (dto.DrainOutput, error) {
	drained, err := i.svc.Drain(ctx)
	if err != nil {
		return dto.DrainOutput{}, err
	}
	remaining, err := i.svc.Pending(ctx)
	if err != nil {
		return dto.DrainOutput{}, err
	}
	return dto.DrainOutput{Drained: drained, Remaining: remaining}, nil
}

func (i *Interactor) Cancel(ctx context.Context, localID string) (int, error) {
	return i.svc.Cancel(ctx, localID)
}

func (i *Interactor) Pending(ctx context.Context) (int, error) {
	return i.svc.Pending(ctx)
}

func (i *Interactor) List(ctx context.Context) ([]dto.ItemOutput, error) {
	items, err := i.svc.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ItemOutput, 0, len(items))
	for _, item := range items {
		out = append(out, toOutput(item))
	}
	return out, nil
}

func toOutput(item domain.Item) dto.ItemOutput {
	return dto.ItemOutput{
		Seq:        item.Seq,
		LocalID:    item.LocalID,
		OpType:     string(item.OpType),
		Collection: item.Collection,
		Key:        item.Key,
		CreatedAt:  item.CreatedAt,
	}
}
