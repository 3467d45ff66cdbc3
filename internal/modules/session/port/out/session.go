package out

import (
	"context"

	"tempo/internal/modules/session/domain"
)

// MirrorStore is the remote mutable record keyed by user identity.
// Writes are whole-record; there is no partial update.
type MirrorStore interface {
	Save(ctx context.Context, active domain.ActiveSession) error
	Load(ctx context.Context, userID string) (domain.ActiveSession, error)
	Clear(ctx context.Context, userID string) error
}

// MirrorCache is the durable local copy read on cold start so the UI
// never blocks on a network round trip for a plausible state.
type MirrorCache interface {
	Save(ctx context.Context, active domain.ActiveSession) error
	Load(ctx context.Context) (domain.ActiveSession, error)
	Clear(ctx context.Context) error
}

// DraftStore persists in-progress notes text across reloads until the
// session ends.
type DraftStore interface {
	SaveDraft(ctx context.Context, notes string) error
	LoadDraft(ctx context.Context) (string, error)
	ClearDraft(ctx context.Context) error
}
