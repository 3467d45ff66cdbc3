package in

import (
	"context"

	"tempo/internal/modules/session/dto"
)

type Usecase interface {
	Start(ctx context.Context, input dto.StartInput) (dto.ActiveOutput, error)
	ToggleBreak(ctx context.Context) (dto.ActiveOutput, error)
	UpdateDetails(ctx context.Context, input dto.DetailsInput) (dto.ActiveOutput, error)
	End(ctx context.Context) (dto.EndOutput, error)
	Active(ctx context.Context) (dto.ActiveOutput, error)
	SaveDraft(ctx context.Context, notes string) error
	LoadDraft(ctx context.Context) (string, error)
	Subscribe(buffer int) (<-chan dto.Event, func())
	SyncStatus(ctx context.Context) (dto.SyncStatus, error)
}
