package in

import (
	"context"

	"tempo/internal/modules/session/dto"
	sessionin "tempo/internal/modules/session/port/in"
)

type CLIHandler struct {
	usecase sessionin.Usecase
}

func NewCLIHandler(usecase sessionin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Start(ctx context.Context, title, category, notes string) (dto.ActiveOutput, error) {
	return h.usecase.Start(ctx, dto.StartInput{Title: title, Category: category, Notes: notes})
}

func (h CLIHandler) ToggleBreak(ctx context.Context) (dto.ActiveOutput, error) {
	return h.usecase.ToggleBreak(ctx)
}

func (h CLIHandler) UpdateDetails(ctx context.Context, title, notes *string) (dto.ActiveOutput, error) {
	return h.usecase.UpdateDetails(ctx, dto.DetailsInput{Title: title, Notes: notes})
}

func (h CLIHandler) End(ctx context.Context) (dto.EndOutput, error) {
	return h.usecase.End(ctx)
}

func (h CLIHandler) Status(ctx context.Context) (dto.ActiveOutput, error) {
	return h.usecase.Active(ctx)
}

func (h CLIHandler) SyncStatus(ctx context.Context) (dto.SyncStatus, error) {
	return h.usecase.SyncStatus(ctx)
}
