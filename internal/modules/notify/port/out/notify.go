package out

import (
	"context"

	"tempo/internal/modules/notify/domain"
)

type Sink interface {
	Notify(ctx context.Context, event domain.Event) error
}
