package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"tempo/internal/modules/outbox/domain"
	outboxout "tempo/internal/modules/outbox/port/out"
	"tempo/internal/platform/clock"
)

// OutboxService durably records mutations whose remote write failed and
// replays them in FIFO order. A queued mutation is never dropped
// silently: enqueue failures are at minimum logged.
type OutboxService struct {
	clk     clock.Clock
	store   outboxout.QueueStore
	applier outboxout.RemoteApplier
	log     *logrus.Entry
}

func NewOutboxService(clk clock.Clock, store outboxout.QueueStore, applier outboxout.RemoteApplier, logger *logrus.Logger) *OutboxService {
	if logger == nil {
		logger = logrus.New()
	}
	return &OutboxService{clk: clk, store: store, applier: applier, log: logger.WithField("component", "outbox")}
}

// Enqueue appends a failed mutation for later replay. It returns the
// stored item so callers can report the queue position.
func (s *OutboxService) Enqueue(ctx context.Context, item domain.Item) (domain.Item, error) {
	if err := item.Validate(); err != nil {
		return domain.Item{}, err
	}
	item.CreatedAt = s.clk.Now()
	stored, err := s.store.Append(ctx, item)
	if err != nil {
		// Storage exhaustion must leave a trace even though the caller
		// already has its own failure to report.
		s.log.WithError(err).WithField("key", item.Collection+"/"+item.Key).Warn("failed to queue offline mutation")
		return domain.Item{}, fmt.Errorf("queue offline mutation: %w", err)
	}
	s.log.WithFields(logrus.Fields{"seq": stored.Seq, "op": stored.OpType, "key": stored.Collection + "/" + stored.Key}).Info("mutation queued for replay")
	return stored, nil
}

// Drain replays queued mutations oldest-first. Each successfully
// replayed item is removed before the next is attempted, so a replayed
// mutation can never run twice after a crash mid-drain. Draining stops
// at the first item that still fails; later items wait their turn to
// preserve per-device ordering.
func (s *OutboxService) Drain(ctx context.Context) (int, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list offline queue: %w", err)
	}

	drained := 0
	for _, item := range items {
		if err := s.replay(ctx, item); err != nil {
			s.log.WithError(err).WithField("seq", item.Seq).Debug("replay still failing, keeping queue")
			return drained, nil
		}
		if err := s.store.Remove(ctx, item.Seq); err != nil {
			return drained, fmt.Errorf("remove replayed item %d: %w", item.Seq, err)
		}
		drained++
	}
	if drained > 0 {
		s.log.WithField("count", drained).Info("offline queue drained")
	}
	return drained, nil
}

func (s *OutboxService) Pending(ctx context.Context) (int, error) {
	return s.store.Len(ctx)
}

func (s *OutboxService) Items(ctx context.Context) ([]domain.Item, error) {
	return s.store.List(ctx)
}

// Cancel drops every queued mutation tagged with localID. Used when a
// record is deleted before its queued create ever reached the remote,
// so the replay cannot resurrect it.
func (s *OutboxService) Cancel(ctx context.Context, localID string) (int, error) {
	if localID == "" {
		return 0, nil
	}
	items, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list offline queue: %w", err)
	}
	removed := 0
	for _, item := range items {
		if item.LocalID != localID {
			continue
		}
		if err := s.store.Remove(ctx, item.Seq); err != nil {
			return removed, fmt.Errorf("cancel queued item %d: %w", item.Seq, err)
		}
		removed++
	}
	if removed > 0 {
		s.log.WithFields(logrus.Fields{"local_id": localID, "count": removed}).Info("queued mutations cancelled")
	}
	return removed, nil
}

func (s *OutboxService) replay(ctx context.Context, item domain.Item) error {
	switch item.OpType {
	case domain.OpPut:
		return s.applier.Put(ctx, item.Collection, item.Key, item.Payload)
	case domain.OpDelete:
		return s.applier.Delete(ctx, item.Collection, item.Key)
	default:
		return fmt.Errorf("unknown op type %q", item.OpType)
	}
}
