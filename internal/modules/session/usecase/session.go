package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	historydto "tempo/internal/modules/history/dto"
	historyin "tempo/internal/modules/history/port/in"
	outboxdto "tempo/internal/modules/outbox/dto"
	outboxin "tempo/internal/modules/outbox/port/in"
	"tempo/internal/modules/session/domain"
	"tempo/internal/modules/session/dto"
	sessionin "tempo/internal/modules/session/port/in"
	sessionout "tempo/internal/modules/session/port/out"
	"tempo/internal/modules/session/service"
	apperrors "tempo/internal/platform/errors"
)

// Interactor drives the session lifecycle end to end: legality checks
// in the service, optimistic projection through the sync runtime, the
// remote mirror write, and the offline queue when that write cannot
// land.
type Interactor struct {
	svc     *service.SessionService
	sync    *service.SyncRuntime
	mirrors sessionout.MirrorStore
	drafts  sessionout.DraftStore
	history historyin.Usecase
	queue   outboxin.Usecase
	log     *logrus.Entry
}

func NewInteractor(svc *service.SessionService, sync *service.SyncRuntime, mirrors sessionout.MirrorStore, drafts sessionout.DraftStore, history historyin.Usecase, queue outboxin.Usecase, logger *logrus.Logger) sessionin.Usecase {
	if logger == nil {
		logger = logrus.New()
	}
	return &Interactor{
		svc:     svc,
		sync:    sync,
		mirrors: mirrors,
		drafts:  drafts,
		history: history,
		queue:   queue,
		log:     logger.WithField("component", "session"),
	}
}

func (i *Interactor) Start(ctx context.Context, input dto.StartInput) (dto.ActiveOutput, error) {
	current, hasActive := i.sync.Snapshot()
	if !hasActive {
		current = domain.ActiveSession{}
	}
	active, err := i.svc.Start(current, input.Title, input.Category, input.Notes)
	if err != nil {
		return dto.ActiveOutput{}, err
	}
	if err := i.writeMirror(ctx, active); err != nil {
		return dto.ActiveOutput{}, err
	}
	return service.ToActiveOutput(active, true), nil
}

// ToggleBreak flips the break state. With no active session it reports
// the idle state instead of failing, so a stale keybinding press is
// harmless.
func (i *Interactor) ToggleBreak(ctx context.Context) (dto.ActiveOutput, error) {
	current, hasActive := i.sync.Snapshot()
	if !hasActive {
		return dto.ActiveOutput{}, nil
	}
	next, err := i.svc.Toggle(current)
	if err != nil {
		return dto.ActiveOutput{}, err
	}
	if err := i.writeMirrorWithRollback(ctx, current, next); err != nil {
		return dto.ActiveOutput{}, err
	}
	return service.ToActiveOutput(next, true), nil
}

func (i *Interactor) UpdateDetails(ctx context.Context, input dto.DetailsInput) (dto.ActiveOutput, error) {
	current, hasActive := i.sync.Snapshot()
	if !hasActive {
		return dto.ActiveOutput{}, nil
	}
	next, err := i.svc.UpdateDetails(current, input.Title, input.Notes)
	if err != nil {
		return dto.ActiveOutput{}, err
	}
	if err := i.writeMirrorWithRollback(ctx, current, next); err != nil {
		return dto.ActiveOutput{}, err
	}
	return service.ToActiveOutput(next, true), nil
}

// End finalizes the active session into a history record, then clears
// the mirror everywhere. The record write and the mirror clear fail
// over to the offline queue independently.
func (i *Interactor) End(ctx context.Context) (dto.EndOutput, error) {
	current, hasActive := i.sync.Snapshot()
	if !hasActive {
		return dto.EndOutput{}, apperrors.ErrNoActiveSession
	}
	final, err := i.svc.Finalize(current)
	if err != nil {
		return dto.EndOutput{}, err
	}

	created, err := i.history.CreateRecord(ctx, historydto.CreateRecordInput{
		Title:        final.Title,
		Category:     final.Category,
		Notes:        final.Notes,
		Breaks:       final.Breaks,
		StartedAt:    final.StartedAt,
		EndedAt:      final.EndedAt,
		TotalFocusMs: final.TotalFocusMs,
		TotalBreakMs: final.TotalBreakMs,
		LocalRef:     final.ID,
	})
	if err != nil {
		// The session survives a failed finalize so nothing is lost.
		return dto.EndOutput{}, fmt.Errorf("save finalized session: %w", err)
	}

	mirrorQueued := false
	if err := i.mirrors.Clear(ctx, i.svc.UserID()); err != nil {
		if !errors.Is(err, apperrors.ErrOffline) {
			// Clearing again is safe; leave it to the queue rather than
			// resurrect a session whose record already exists.
			i.log.WithError(err).Warn("remote mirror clear failed")
		}
		if qErr := i.enqueueMirrorClear(ctx); qErr != nil {
			return dto.EndOutput{}, qErr
		}
		mirrorQueued = true
	}

	i.sync.ApplyClearedLocal(ctx)
	if err := i.drafts.ClearDraft(ctx); err != nil {
		i.log.WithError(err).Warn("draft clear failed")
	}

	return dto.EndOutput{
		Ended:        true,
		SessionID:    created.ID,
		Title:        final.Title,
		StartedAt:    final.StartedAt,
		EndedAt:      final.EndedAt,
		TotalFocusMs: final.TotalFocusMs,
		TotalBreakMs: final.TotalBreakMs,
		Queued:       created.Queued || mirrorQueued,
	}, nil
}

func (i *Interactor) Active(ctx context.Context) (dto.ActiveOutput, error) {
	current, hasActive := i.sync.Snapshot()
	if !hasActive {
		return dto.ActiveOutput{}, nil
	}
	return service.ToActiveOutput(current, true), nil
}

func (i *Interactor) SaveDraft(ctx context.Context, notes string) error {
	return i.drafts.SaveDraft(ctx, notes)
}

func (i *Interactor) LoadDraft(ctx context.Context) (string, error) {
	return i.drafts.LoadDraft(ctx)
}

func (i *Interactor) Subscribe(buffer int) (<-chan dto.Event, func()) {
	return i.sync.Subscribe(buffer)
}

func (i *Interactor) SyncStatus(ctx context.Context) (dto.SyncStatus, error) {
	pending, err := i.queue.Pending(ctx)
	if err != nil {
		return dto.SyncStatus{}, err
	}
	return dto.SyncStatus{Online: i.sync.Online(), Pending: pending}, nil
}

// writeMirror applies next optimistically and pushes it to the remote
// mirror. Offline keeps the optimistic state and queues the write; any
// other failure surfaces without touching the projection.
func (i *Interactor) writeMirror(ctx context.Context, next domain.ActiveSession) error {
	err := i.mirrors.Save(ctx, next)
	if err == nil {
		i.sync.ApplyLocal(ctx, next)
		return nil
	}
	if errors.Is(err, apperrors.ErrOffline) {
		i.sync.ApplyLocal(ctx, next)
		return i.enqueueMirrorPut(ctx, next)
	}
	return fmt.Errorf("save mirror: %w", err)
}

// writeMirrorWithRollback is writeMirror for transitions of an already
// projected session: the optimistic state is visible immediately and a
// hard failure restores prev.
func (i *Interactor) writeMirrorWithRollback(ctx context.Context, prev, next domain.ActiveSession) error {
	i.sync.ApplyLocal(ctx, next)
	err := i.mirrors.Save(ctx, next)
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrOffline) {
		return i.enqueueMirrorPut(ctx, next)
	}
	i.sync.ApplyLocal(ctx, prev)
	return fmt.Errorf("save mirror: %w", err)
}

func (i *Interactor) enqueueMirrorPut(ctx context.Context, active domain.ActiveSession) error {
	payload, err := json.Marshal(active)
	if err != nil {
		return fmt.Errorf("encode mirror: %w", err)
	}
	_, err = i.queue.Enqueue(ctx, outboxdto.EnqueueInput{
		LocalID:    active.UserID,
		OpType:     "put",
		Collection: domain.MirrorCollection,
		Key:        active.UserID,
		Payload:    payload,
	})
	return err
}

func (i *Interactor) enqueueMirrorClear(ctx context.Context) error {
	userID := i.svc.UserID()
	// A queued clear supersedes any queued mirror writes from this
	// session; drop them so replay cannot reorder into a resurrect.
	if _, err := i.queue.Cancel(ctx, userID); err != nil {
		i.log.WithError(err).Warn("cancelling queued mirror writes failed")
	}
	_, err := i.queue.Enqueue(ctx, outboxdto.EnqueueInput{
		LocalID:    userID,
		OpType:     "delete",
		Collection: domain.MirrorCollection,
		Key:        userID,
	})
	return err
}
