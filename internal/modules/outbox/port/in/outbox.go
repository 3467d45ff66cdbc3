package in

import (
	"context"

	"tempo/internal/modules/outbox/dto"
)

type Usecase interface {
	Enqueue(ctx context.Context, input dto.EnqueueInput) (dto.ItemOutput, error)
	Drain(ctx context.Context) (dto.DrainOutput, error)
	Cancel(ctx context.Context, localID string) (int, error)
	Pending(ctx context.Context) (int, error)
	List(ctx context.Context) ([]dto.ItemOutput, error)
}
