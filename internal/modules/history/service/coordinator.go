package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tempo/internal/modules/history/domain"
	historyout "tempo/internal/modules/history/port/out"
	notifyin "tempo/internal/modules/notify/port/in"
	outboxdto "tempo/internal/modules/outbox/dto"
	outboxin "tempo/internal/modules/outbox/port/in"
	"tempo/internal/platform/clock"
	"tempo/internal/platform/docstore"
	apperrors "tempo/internal/platform/errors"
	"tempo/internal/platform/id"
	"tempo/internal/platform/tx"
)

// Outcome reports how a mutation landed. Queued means the local
// projection holds the change and the remote write waits in the
// offline queue.
type Outcome struct {
	ID     string
	Queued bool
}

// Coordinator runs every history mutation through one path: snapshot
// the cache, apply optimistically, write to the remote, then reconcile
// on success, queue on offline, or roll back on anything else.
type Coordinator struct {
	clk      clock.Clock
	idGen    id.Generator
	userID   string
	cache    historyout.RecordCache
	store    historyout.RecordStore
	queue    outboxin.Usecase
	txm      tx.Manager
	notifier notifyin.Notifier
	log      *logrus.Entry
}

func NewCoordinator(clk clock.Clock, idGen id.Generator, userID string, cache historyout.RecordCache, store historyout.RecordStore, queue outboxin.Usecase, txm tx.Manager, notifier notifyin.Notifier, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	if txm == nil {
		txm = tx.NoopManager{}
	}
	return &Coordinator{
		clk:      clk,
		idGen:    idGen,
		userID:   userID,
		cache:    cache,
		store:    store,
		queue:    queue,
		txm:      txm,
		notifier: notifier,
		log:      logger.WithField("component", "history"),
	}
}

// Apply is the single entry point for history mutations. Every create,
// update and delete variant runs the same sequence: snapshot, apply
// optimistically, write remote, then reconcile, queue or roll back.
func (c *Coordinator) Apply(ctx context.Context, m domain.Mutation) (Outcome, error) {
	if err := m.Validate(); err != nil {
		return Outcome{}, err
	}
	// The whole sequence runs inside one transactional boundary so the
	// cache and queue writes of a single mutation land together.
	var out Outcome
	err := c.txm.Within(ctx, func(ctx context.Context) error {
		var applyErr error
		out, applyErr = c.apply(ctx, m)
		return applyErr
	})
	return out, err
}

func (c *Coordinator) apply(ctx context.Context, m domain.Mutation) (Outcome, error) {
	switch m.Kind {
	case domain.MutationCreate:
		if m.Goal != nil {
			return c.createGoal(ctx, *m.Goal)
		}
		return c.createRecord(ctx, *m.Record)
	case domain.MutationUpdate:
		return c.updateRecord(ctx, m.ID, *m.Patch)
	case domain.MutationDelete:
		if m.Collection == domain.GoalCollection {
			return c.deleteGoal(ctx, m.ID)
		}
		return c.deleteRecord(ctx, m.ID)
	}
	return Outcome{}, fmt.Errorf("%w: mutation kind %q", apperrors.ErrInvalidInput, m.Kind)
}

// CreateRecord inserts rec optimistically under a local id, then asks
// the remote store for the authoritative copy. The local placeholder
// carries LocalRef so the confirmed record, arriving either from the
// direct response or later over the watch stream, replaces it exactly
// once.
func (c *Coordinator) createRecord(ctx context.Context, rec domain.Record) (Outcome, error) {
	rec.UserID = c.userID
	if rec.LocalRef == "" {
		rec.LocalRef = id.NewLocal(c.idGen)
	}
	rec.ID = rec.LocalRef
	rec.Pending = true
	if err := rec.Validate(); err != nil {
		return Outcome{}, err
	}

	if err := c.cache.UpsertRecord(ctx, rec); err != nil {
		return Outcome{}, fmt.Errorf("cache optimistic record: %w", err)
	}

	remote := rec
	remote.ID = ""
	stored, err := c.store.PutRecord(ctx, remote)
	if err == nil {
		c.confirmRecord(ctx, rec.LocalRef, stored)
		c.notifier.Success(ctx, "Session saved", rec.Title)
		return Outcome{ID: stored.ID}, nil
	}
	if errors.Is(err, apperrors.ErrOffline) {
		if qErr := c.enqueueRecordPut(ctx, rec.LocalRef, "", remote); qErr != nil {
			return Outcome{}, qErr
		}
		c.notifier.Info(ctx, "Saved offline", rec.Title+" will sync when the connection returns")
		return Outcome{ID: rec.ID, Queued: true}, nil
	}

	// Not a connectivity problem: undo the optimistic insert so the
	// projection matches the remote again.
	if rbErr := c.cache.RemoveRecord(ctx, rec.ID); rbErr != nil {
		c.log.WithError(rbErr).Warn("rollback of optimistic record failed")
	}
	c.notifier.Error(ctx, "Save failed", err.Error())
	return Outcome{}, fmt.Errorf("store record: %w", err)
}

// UpdateRecord patches an existing record. The pre-mutation snapshot is
// taken from the cache and restored verbatim if the remote rejects the
// write.
func (c *Coordinator) updateRecord(ctx context.Context, recordID string, patch domain.RecordPatch) (Outcome, error) {
	if recordID == "" || (patch.Title == nil && patch.Notes == nil) {
		return Outcome{}, fmt.Errorf("%w: nothing to update", apperrors.ErrInvalidInput)
	}
	snapshot, err := c.cache.GetRecord(ctx, recordID)
	if err != nil {
		return Outcome{}, err
	}

	updated := snapshot
	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.Notes != nil {
		updated.Notes = *patch.Notes
	}
	if err := updated.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := c.cache.UpsertRecord(ctx, updated); err != nil {
		return Outcome{}, fmt.Errorf("cache optimistic update: %w", err)
	}

	if id.IsLocal(recordID) {
		// The record never reached the remote; refresh the queued
		// create instead of issuing an update for an unknown key.
		return c.requeuePending(ctx, recordID, updated, snapshot)
	}

	stored, err := c.store.PutRecord(ctx, updated)
	if err == nil {
		c.confirmRecord(ctx, updated.LocalRef, stored)
		c.notifier.Success(ctx, "Session updated", updated.Title)
		return Outcome{ID: stored.ID}, nil
	}
	if errors.Is(err, apperrors.ErrOffline) {
		if qErr := c.enqueueRecordPut(ctx, recordID, recordID, updated); qErr != nil {
			return Outcome{}, qErr
		}
		c.notifier.Info(ctx, "Saved offline", updated.Title+" will sync when the connection returns")
		return Outcome{ID: recordID, Queued: true}, nil
	}

	if rbErr := c.cache.UpsertRecord(ctx, snapshot); rbErr != nil {
		c.log.WithError(rbErr).Warn("rollback of optimistic update failed")
	}
	c.notifier.Error(ctx, "Update failed", err.Error())
	return Outcome{}, fmt.Errorf("store record: %w", err)
}

// DeleteRecord removes a record optimistically. Deleting a record that
// only ever existed locally cancels its queued create and never touches
// the remote.
func (c *Coordinator) deleteRecord(ctx context.Context, recordID string) (Outcome, error) {
	if recordID == "" {
		return Outcome{}, fmt.Errorf("%w: record id is required", apperrors.ErrInvalidInput)
	}
	snapshot, err := c.cache.GetRecord(ctx, recordID)
	if err != nil {
		return Outcome{}, err
	}
	if err := c.cache.RemoveRecord(ctx, recordID); err != nil {
		return Outcome{}, fmt.Errorf("cache optimistic delete: %w", err)
	}

	if id.IsLocal(recordID) {
		if _, err := c.queue.Cancel(ctx, recordID); err != nil {
			c.log.WithError(err).Warn("cancelling queued create failed")
		}
		c.notifier.Success(ctx, "Session deleted", snapshot.Title)
		return Outcome{ID: recordID}, nil
	}

	err = c.store.DeleteRecord(ctx, recordID)
	if err == nil {
		c.notifier.Success(ctx, "Session deleted", snapshot.Title)
		return Outcome{ID: recordID}, nil
	}
	if errors.Is(err, apperrors.ErrOffline) {
		input := outboxdto.EnqueueInput{
			LocalID:    recordID,
			OpType:     "delete",
			Collection: domain.SessionCollection,
			Key:        recordID,
		}
		if _, qErr := c.queue.Enqueue(ctx, input); qErr != nil {
			return Outcome{}, qErr
		}
		c.notifier.Info(ctx, "Deleted offline", snapshot.Title+" will sync when the connection returns")
		return Outcome{ID: recordID, Queued: true}, nil
	}

	if rbErr := c.cache.UpsertRecord(ctx, snapshot); rbErr != nil {
		c.log.WithError(rbErr).Warn("rollback of optimistic delete failed")
	}
	c.notifier.Error(ctx, "Delete failed", err.Error())
	return Outcome{}, fmt.Errorf("delete record: %w", err)
}

func (c *Coordinator) ListRecords(ctx context.Context) ([]domain.Record, error) {
	return c.cache.ListRecords(ctx, c.userID)
}

// CreateGoal mirrors CreateRecord for weekly goals.
func (c *Coordinator) createGoal(ctx context.Context, g domain.Goal) (Outcome, error) {
	g.UserID = c.userID
	g.CreatedAt = c.clk.Now()
	if g.LocalRef == "" {
		g.LocalRef = id.NewLocal(c.idGen)
	}
	g.ID = g.LocalRef
	g.Pending = true
	if err := g.Validate(); err != nil {
		return Outcome{}, err
	}

	if err := c.cache.UpsertGoal(ctx, g); err != nil {
		return Outcome{}, fmt.Errorf("cache optimistic goal: %w", err)
	}

	remote := g
	remote.ID = ""
	stored, err := c.store.PutGoal(ctx, remote)
	if err == nil {
		c.confirmGoal(ctx, g.LocalRef, stored)
		c.notifier.Success(ctx, "Goal saved", g.Name)
		return Outcome{ID: stored.ID}, nil
	}
	if errors.Is(err, apperrors.ErrOffline) {
		payload, mErr := json.Marshal(remote)
		if mErr != nil {
			return Outcome{}, fmt.Errorf("encode goal: %w", mErr)
		}
		input := outboxdto.EnqueueInput{
			LocalID:    g.LocalRef,
			OpType:     "put",
			Collection: domain.GoalCollection,
			Payload:    payload,
		}
		if _, qErr := c.queue.Enqueue(ctx, input); qErr != nil {
			return Outcome{}, qErr
		}
		c.notifier.Info(ctx, "Saved offline", g.Name+" will sync when the connection returns")
		return Outcome{ID: g.ID, Queued: true}, nil
	}

	if rbErr := c.cache.RemoveGoal(ctx, g.ID); rbErr != nil {
		c.log.WithError(rbErr).Warn("rollback of optimistic goal failed")
	}
	c.notifier.Error(ctx, "Save failed", err.Error())
	return Outcome{}, fmt.Errorf("store goal: %w", err)
}

func (c *Coordinator) deleteGoal(ctx context.Context, goalID string) (Outcome, error) {
	if goalID == "" {
		return Outcome{}, fmt.Errorf("%w: goal id is required", apperrors.ErrInvalidInput)
	}
	goals, err := c.cache.ListGoals(ctx, c.userID)
	if err != nil {
		return Outcome{}, err
	}
	var snapshot domain.Goal
	found := false
	for _, g := range goals {
		if g.ID == goalID {
			snapshot = g
			found = true
			break
		}
	}
	if !found {
		return Outcome{}, fmt.Errorf("%w: goal %s", apperrors.ErrNotFound, goalID)
	}
	if err := c.cache.RemoveGoal(ctx, goalID); err != nil {
		return Outcome{}, fmt.Errorf("cache optimistic delete: %w", err)
	}

	if id.IsLocal(goalID) {
		if _, err := c.queue.Cancel(ctx, goalID); err != nil {
			c.log.WithError(err).Warn("cancelling queued create failed")
		}
		c.notifier.Success(ctx, "Goal deleted", snapshot.Name)
		return Outcome{ID: goalID}, nil
	}

	err = c.store.DeleteGoal(ctx, goalID)
	if err == nil {
		c.notifier.Success(ctx, "Goal deleted", snapshot.Name)
		return Outcome{ID: goalID}, nil
	}
	if errors.Is(err, apperrors.ErrOffline) {
		input := outboxdto.EnqueueInput{
			LocalID:    goalID,
			OpType:     "delete",
			Collection: domain.GoalCollection,
			Key:        goalID,
		}
		if _, qErr := c.queue.Enqueue(ctx, input); qErr != nil {
			return Outcome{}, qErr
		}
		c.notifier.Info(ctx, "Deleted offline", snapshot.Name+" will sync when the connection returns")
		return Outcome{ID: goalID, Queued: true}, nil
	}

	if rbErr := c.cache.UpsertGoal(ctx, snapshot); rbErr != nil {
		c.log.WithError(rbErr).Warn("rollback of optimistic delete failed")
	}
	c.notifier.Error(ctx, "Delete failed", err.Error())
	return Outcome{}, fmt.Errorf("delete goal: %w", err)
}

func (c *Coordinator) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	return c.cache.ListGoals(ctx, c.userID)
}

// Reconcile folds one watch-stream document into the cache. Confirmed
// records that carry a LocalRef replace their optimistic placeholder;
// anything uncorrelated is a fresh insert from another device.
func (c *Coordinator) Reconcile(doc docstore.Document) {
	ctx := context.Background()
	switch doc.Collection {
	case domain.SessionCollection:
		if doc.Deleted {
			if err := c.cache.RemoveRecord(ctx, doc.Key); err != nil {
				c.log.WithError(err).WithField("key", doc.Key).Warn("remove synced record failed")
			}
			return
		}
		var rec domain.Record
		if err := json.Unmarshal(doc.Body, &rec); err != nil {
			c.log.WithError(err).WithField("key", doc.Key).Warn("undecodable record document")
			return
		}
		rec.ID = doc.Key
		rec.Pending = false
		c.confirmRecord(ctx, rec.LocalRef, rec)
	case domain.GoalCollection:
		if doc.Deleted {
			if err := c.cache.RemoveGoal(ctx, doc.Key); err != nil {
				c.log.WithError(err).WithField("key", doc.Key).Warn("remove synced goal failed")
			}
			return
		}
		var g domain.Goal
		if err := json.Unmarshal(doc.Body, &g); err != nil {
			c.log.WithError(err).WithField("key", doc.Key).Warn("undecodable goal document")
			return
		}
		g.ID = doc.Key
		g.Pending = false
		c.confirmGoal(ctx, g.LocalRef, g)
	}
}

// confirmRecord swaps the optimistic placeholder for the authoritative
// record. Running it twice, once for the direct RPC response and once
// for the watch echo, still leaves exactly one entry.
func (c *Coordinator) confirmRecord(ctx context.Context, localRef string, stored domain.Record) {
	stored.Pending = false
	if localRef != "" && localRef != stored.ID {
		if err := c.cache.RemoveRecord(ctx, localRef); err != nil {
			c.log.WithError(err).WithField("local_ref", localRef).Warn("drop placeholder failed")
		}
	}
	if err := c.cache.UpsertRecord(ctx, stored); err != nil {
		c.log.WithError(err).WithField("id", stored.ID).Warn("cache confirmed record failed")
	}
}

func (c *Coordinator) confirmGoal(ctx context.Context, localRef string, stored domain.Goal) {
	stored.Pending = false
	if localRef != "" && localRef != stored.ID {
		if err := c.cache.RemoveGoal(ctx, localRef); err != nil {
			c.log.WithError(err).WithField("local_ref", localRef).Warn("drop placeholder failed")
		}
	}
	if err := c.cache.UpsertGoal(ctx, stored); err != nil {
		c.log.WithError(err).WithField("id", stored.ID).Warn("cache confirmed goal failed")
	}
}

func (c *Coordinator) enqueueRecordPut(ctx context.Context, localID, key string, rec domain.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	input := outboxdto.EnqueueInput{
		LocalID:    localID,
		OpType:     "put",
		Collection: domain.SessionCollection,
		Key:        key,
		Payload:    payload,
	}
	if _, err := c.queue.Enqueue(ctx, input); err != nil {
		return err
	}
	return nil
}

// requeuePending refreshes the queued create for a record the remote
// has never seen. The replayed payload must reflect the latest edit,
// not the one queued first.
func (c *Coordinator) requeuePending(ctx context.Context, localID string, updated, snapshot domain.Record) (Outcome, error) {
	if _, err := c.queue.Cancel(ctx, localID); err != nil {
		c.log.WithError(err).Warn("cancelling stale queued create failed")
	}
	remote := updated
	remote.ID = ""
	if err := c.enqueueRecordPut(ctx, localID, "", remote); err != nil {
		if rbErr := c.cache.UpsertRecord(ctx, snapshot); rbErr != nil {
			c.log.WithError(rbErr).Warn("rollback of optimistic update failed")
		}
		return Outcome{}, err
	}
	c.notifier.Success(ctx, "Session updated", updated.Title)
	return Outcome{ID: localID, Queued: true}, nil
}
