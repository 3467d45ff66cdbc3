package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	historydomain "tempo/internal/modules/history/domain"
	"tempo/internal/modules/session/domain"
	"tempo/internal/modules/session/dto"
	sessionout "tempo/internal/modules/session/port/out"
	"tempo/internal/platform/docstore"
	apperrors "tempo/internal/platform/errors"
)

// SyncRuntime keeps the local projection of the mirror in step with
// the remote store. It is the sole writer of authoritative session
// state: local mutations report through ApplyLocal, remote ones arrive
// through the watch stream, and everything downstream only subscribes.
type SyncRuntime struct {
	userID string
	client *docstore.Client
	cache  sessionout.MirrorCache
	log    *logrus.Entry

	mu        sync.RWMutex
	current   domain.ActiveSession
	hasActive bool
	online    bool
	subs      map[int64]chan dto.Event
	nextSub   int64
	onOnline  []func()
	onRecord  []func(doc docstore.Document)
}

func NewSyncRuntime(userID string, client *docstore.Client, cache sessionout.MirrorCache, logger *logrus.Logger) *SyncRuntime {
	if logger == nil {
		logger = logrus.New()
	}
	return &SyncRuntime{
		userID: userID,
		client: client,
		cache:  cache,
		log:    logger.WithField("component", "mirror-sync"),
		subs:   map[int64]chan dto.Event{},
	}
}

// Prime loads the durable cache so callers see a plausible state
// instantly; the watch stream reconciles it as soon as it connects.
func (r *SyncRuntime) Prime(ctx context.Context) error {
	cached, err := r.cache.Load(ctx)
	if err != nil {
		// An empty cache is the normal cold start: first run, or any
		// run after the last session ended.
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	r.mu.Lock()
	r.current = cached
	r.hasActive = true
	r.mu.Unlock()
	return nil
}

// Run blocks, holding the realtime subscription open until ctx is
// cancelled.
func (r *SyncRuntime) Run(ctx context.Context) error {
	if err := r.Prime(ctx); err != nil {
		return err
	}
	r.client.WatchLoop(ctx, []string{domain.MirrorCollection, domain.SessionCollection, historydomain.GoalCollection}, docstore.Handlers{
		OnChange: r.ingest,
		OnStatus: r.setOnline,
	})
	return nil
}

// OnOnline registers a hook run every time the stream comes (back) up.
// The outbox drains through one of these.
func (r *SyncRuntime) OnOnline(fn func()) {
	r.mu.Lock()
	r.onOnline = append(r.onOnline, fn)
	r.mu.Unlock()
}

// OnRecord registers a handler for finalized-record traffic; the
// history coordinator reconciles optimistic creates through it.
func (r *SyncRuntime) OnRecord(fn func(doc docstore.Document)) {
	r.mu.Lock()
	r.onRecord = append(r.onRecord, fn)
	r.mu.Unlock()
}

func (r *SyncRuntime) Online() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.online
}

// Snapshot returns the current projection without touching the
// network.
func (r *SyncRuntime) Snapshot() (domain.ActiveSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.hasActive
}

// ApplyLocal records a mutation made on this device. The same record
// will usually echo back over the watch stream once confirmed; the
// deep-equality check keeps that echo from re-triggering subscribers.
func (r *SyncRuntime) ApplyLocal(ctx context.Context, active domain.ActiveSession) {
	if err := r.cache.Save(ctx, active); err != nil {
		r.log.WithError(err).Warn("mirror cache write failed")
	}
	r.mu.Lock()
	r.current = active
	r.hasActive = true
	r.mu.Unlock()
	r.publish(dto.Event{Kind: dto.EventUpdated, Active: ToActiveOutput(active, true)})
}

// ApplyClearedLocal records a locally initiated session end.
func (r *SyncRuntime) ApplyClearedLocal(ctx context.Context) {
	if err := r.cache.Clear(ctx); err != nil {
		r.log.WithError(err).Warn("mirror cache clear failed")
	}
	r.mu.Lock()
	r.current = domain.ActiveSession{}
	r.hasActive = false
	r.mu.Unlock()
	r.publish(dto.Event{Kind: dto.EventCleared})
}

// Subscribe returns a buffered event channel and its cancel func. Slow
// consumers drop events rather than stall the sync loop; the next
// event carries the full state anyway.
func (r *SyncRuntime) Subscribe(buffer int) (<-chan dto.Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan dto.Event, buffer)

	r.mu.Lock()
	subID := r.nextSub
	r.nextSub++
	r.subs[subID] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if existing, ok := r.subs[subID]; ok {
			delete(r.subs, subID)
			close(existing)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Ingest applies one remote change. Exported for the usecase tests;
// production traffic arrives via Run.
func (r *SyncRuntime) Ingest(doc docstore.Document) {
	r.ingest(doc)
}

func (r *SyncRuntime) ingest(doc docstore.Document) {
	if doc.Collection != domain.MirrorCollection {
		r.mu.RLock()
		handlers := append([]func(docstore.Document){}, r.onRecord...)
		r.mu.RUnlock()
		for _, fn := range handlers {
			fn(doc)
		}
		return
	}
	if doc.Key != r.userID {
		return
	}

	ctx := context.Background()
	if doc.Deleted {
		r.mu.Lock()
		wasActive := r.hasActive
		r.current = domain.ActiveSession{}
		r.hasActive = false
		r.mu.Unlock()
		if !wasActive {
			return
		}
		if err := r.cache.Clear(ctx); err != nil {
			r.log.WithError(err).Warn("mirror cache clear failed")
		}
		r.publish(dto.Event{Kind: dto.EventCleared})
		return
	}

	incoming := domain.ActiveSession{}
	if err := json.Unmarshal(doc.Body, &incoming); err != nil {
		r.log.WithError(err).Warn("undecodable mirror update dropped")
		return
	}

	r.mu.Lock()
	suppress := r.hasActive && r.current.SameData(incoming)
	// The remote copy wins whenever they disagree; even a suppressed
	// update refreshes metadata so the next local mutation builds on
	// the confirmed version.
	r.current = incoming
	r.hasActive = true
	r.mu.Unlock()

	if err := r.cache.Save(ctx, incoming); err != nil {
		r.log.WithError(err).Warn("mirror cache write failed")
	}
	if suppress {
		return
	}
	r.publish(dto.Event{Kind: dto.EventUpdated, Active: ToActiveOutput(incoming, true)})
}

func (r *SyncRuntime) setOnline(online bool) {
	r.mu.Lock()
	r.online = online
	hooks := append([]func(){}, r.onOnline...)
	r.mu.Unlock()

	if !online {
		r.log.Info("mirror subscription offline")
		return
	}
	r.log.Info("mirror subscription online")
	for _, fn := range hooks {
		go fn()
	}
}

func (r *SyncRuntime) publish(event dto.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// ToActiveOutput projects a mirror into its transport shape.
func ToActiveOutput(active domain.ActiveSession, ok bool) dto.ActiveOutput {
	if !ok {
		return dto.ActiveOutput{}
	}
	return dto.ActiveOutput{
		Active:    true,
		Title:     active.Title,
		Category:  active.Category,
		Notes:     active.Notes,
		StartedAt: active.StartedAt,
		OnBreak:   active.OnBreak,
		Breaks:    active.Breaks,
		Version:   active.Version,
	}
}
