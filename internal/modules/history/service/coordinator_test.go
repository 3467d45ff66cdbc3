package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"tempo/internal/modules/history/domain"
	"tempo/internal/modules/history/service"
	outboxadapter "tempo/internal/modules/outbox/adapter/out"
	outboxdto "tempo/internal/modules/outbox/dto"
	outboxservice "tempo/internal/modules/outbox/service"
	outboxusecase "tempo/internal/modules/outbox/usecase"
	"tempo/internal/platform/docstore"
	apperrors "tempo/internal/platform/errors"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqGen struct{ n int }

func (g *seqGen) New() string {
	g.n++
	return fmt.Sprintf("gen%04d", g.n)
}

type memCache struct {
	mu      sync.Mutex
	records map[string]domain.Record
	goals   map[string]domain.Goal
}

func newMemCache() *memCache {
	return &memCache{records: map[string]domain.Record{}, goals: map[string]domain.Goal{}}
}

func (c *memCache) UpsertRecord(_ context.Context, rec domain.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.ID] = rec
	return nil
}

func (c *memCache) RemoveRecord(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, id)
	return nil
}

func (c *memCache) GetRecord(_ context.Context, id string) (domain.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return domain.Record{}, apperrors.ErrNotFound
	}
	return rec, nil
}

func (c *memCache) ListRecords(_ context.Context, userID string) ([]domain.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var recs []domain.Record
	for _, rec := range c.records {
		if rec.UserID == userID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (c *memCache) ReplaceRecords(_ context.Context, userID string, recs []domain.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, rec := range c.records {
		if rec.UserID == userID {
			delete(c.records, id)
		}
	}
	for _, rec := range recs {
		c.records[rec.ID] = rec
	}
	return nil
}

func (c *memCache) UpsertGoal(_ context.Context, g domain.Goal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goals[g.ID] = g
	return nil
}

func (c *memCache) RemoveGoal(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.goals, id)
	return nil
}

func (c *memCache) ListGoals(_ context.Context, userID string) ([]domain.Goal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var goals []domain.Goal
	for _, g := range c.goals {
		if g.UserID == userID {
			goals = append(goals, g)
		}
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].ID < goals[j].ID })
	return goals, nil
}

// scriptedStore answers remote writes per call: nil error confirms with
// a server-assigned id, otherwise the scripted error is returned.
type scriptedStore struct {
	mu     sync.Mutex
	err    error
	nextID int
	puts   []domain.Record
}

func (s *scriptedStore) PutRecord(_ context.Context, rec domain.Record) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Record{}, s.err
	}
	s.puts = append(s.puts, rec)
	stored := rec
	if stored.ID == "" {
		s.nextID++
		stored.ID = fmt.Sprintf("srv%04d", s.nextID)
	}
	return stored, nil
}

func (s *scriptedStore) DeleteRecord(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *scriptedStore) PutGoal(_ context.Context, g domain.Goal) (domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Goal{}, s.err
	}
	stored := g
	if stored.ID == "" {
		s.nextID++
		stored.ID = fmt.Sprintf("srv%04d", s.nextID)
	}
	return stored, nil
}

func (s *scriptedStore) DeleteGoal(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *scriptedStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type memQueue struct {
	mu    sync.Mutex
	items []outboxdto.EnqueueInput
}

func (q *memQueue) Enqueue(_ context.Context, in outboxdto.EnqueueInput) (outboxdto.ItemOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, in)
	return outboxdto.ItemOutput{Seq: int64(len(q.items))}, nil
}

func (q *memQueue) Drain(_ context.Context) (outboxdto.DrainOutput, error) {
	return outboxdto.DrainOutput{}, nil
}

func (q *memQueue) Cancel(_ context.Context, localID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if item.LocalID == localID {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	return removed, nil
}

func (q *memQueue) Pending(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

func (q *memQueue) List(_ context.Context) ([]outboxdto.ItemOutput, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	levels []string
}

func (n *recordingNotifier) Info(_ context.Context, _, _ string)    { n.record("info") }
func (n *recordingNotifier) Success(_ context.Context, _, _ string) { n.record("success") }
func (n *recordingNotifier) Error(_ context.Context, _, _ string)   { n.record("error") }

func (n *recordingNotifier) record(level string) {
	n.mu.Lock()
	n.levels = append(n.levels, level)
	n.mu.Unlock()
}

func (n *recordingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.levels) == 0 {
		return ""
	}
	return n.levels[len(n.levels)-1]
}

type harness struct {
	coord    *service.Coordinator
	cache    *memCache
	store    *scriptedStore
	queue    *memQueue
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cache := newMemCache()
	store := &scriptedStore{}
	queue := &memQueue{}
	notifier := &recordingNotifier{}
	clk := fixedClock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
	coord := service.NewCoordinator(clk, &seqGen{}, "user-1", cache, store, queue, nil, notifier, nil)
	return &harness{coord: coord, cache: cache, store: store, queue: queue, notifier: notifier}
}

func validRecord() domain.Record {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.Record{
		Title:        "Deep work",
		Category:     "writing",
		StartedAt:    start,
		EndedAt:      start.Add(30 * time.Minute),
		TotalFocusMs: 25 * 60 * 1000,
		TotalBreakMs: 5 * 60 * 1000,
	}
}

func TestCreateRecordConfirmedReplacesPlaceholder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationCreate, Record: ptr(validRecord())})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Queued {
		t.Fatal("online create reported as queued")
	}
	if strings.HasPrefix(out.ID, "local-") {
		t.Fatalf("confirmed create kept local id %s", out.ID)
	}

	recs, _ := h.cache.ListRecords(context.Background(), "user-1")
	if len(recs) != 1 {
		t.Fatalf("want exactly one cached record, got %d", len(recs))
	}
	if recs[0].ID != out.ID || recs[0].Pending {
		t.Fatalf("cached record not confirmed: %+v", recs[0])
	}
	if h.notifier.last() != "success" {
		t.Fatalf("want success notification, got %q", h.notifier.last())
	}
}

func TestCreateRecordOfflineKeepsOptimisticAndQueues(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.fail(apperrors.ErrOffline)

	out, err := h.coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationCreate, Record: ptr(validRecord())})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !out.Queued {
		t.Fatal("offline create not reported as queued")
	}
	if !strings.HasPrefix(out.ID, "local-") {
		t.Fatalf("offline create should keep its local id, got %s", out.ID)
	}

	recs, _ := h.cache.ListRecords(context.Background(), "user-1")
	if len(recs) != 1 || !recs[0].Pending {
		t.Fatalf("optimistic record missing or confirmed: %+v", recs)
	}
	if pending, _ := h.queue.Pending(context.Background()); pending != 1 {
		t.Fatalf("want one queued mutation, got %d", pending)
	}
}

func TestCreateRecordHardFailureRollsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.fail(errors.New("records collection is read only"))

	_, err := h.coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationCreate, Record: ptr(validRecord())})
	if err == nil {
		t.Fatal("hard failure returned no error")
	}

	recs, _ := h.cache.ListRecords(context.Background(), "user-1")
	if len(recs) != 0 {
		t.Fatalf("optimistic record survived rollback: %+v", recs)
	}
	if pending, _ := h.queue.Pending(context.Background()); pending != 0 {
		t.Fatalf("hard failure must not enqueue, got %d queued", pending)
	}
	if h.notifier.last() != "error" {
		t.Fatalf("want error notification, got %q", h.notifier.last())
	}
}

func TestUpdateRecordHardFailureRestoresSnapshotExactly(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationCreate, Record: ptr(validRecord())})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, err := h.cache.GetRecord(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	h.store.fail(errors.New("validation rejected"))
	title := "New title"
	_, err = h.coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationUpdate, ID: out.ID, Patch: &domain.RecordPatch{Title: &title}})
	if err == nil {
		t.Fatal("hard failure returned no error")
	}

	after, err := h.cache.GetRecord(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(before, after, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("rollback altered the record (-before +after):\n%s", diff)
	}
}

func TestReconcileDeduplicatesWatchEcho(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.fail(apperrors.ErrOffline)

	out, err := h.coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationCreate, Record: ptr(validRecord())})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Connection returns; the replayed create echoes back over the
	// watch stream carrying the placeholder's LocalRef.
	confirmed := validRecord()
	confirmed.UserID = "user-1"
	confirmed.LocalRef = out.ID
	h.coord.Reconcile(docstore.Document{
		Collection: domain.SessionCollection,
		Key:        "srv9999",
		Body:       mustJSON(t, confirmed),
	})

	recs, _ := h.cache.ListRecords(context.Background(), "user-1")
	if len(recs) != 1 {
		t.Fatalf("want a single deduplicated record, got %d", len(recs))
	}
	if recs[0].ID != "srv9999" || recs[0].Pending {
		t.Fatalf("placeholder not replaced by authoritative record: %+v", recs[0])
	}
}

func TestReconcileUncorrelatedRecordIsFreshInsert(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	other := validRecord()
	other.UserID = "user-1"
	h.coord.Reconcile(docstore.Document{
		Collection: domain.SessionCollection,
		Key:        "srv0042",
		Body:       mustJSON(t, other),
	})

	recs, _ := h.cache.ListRecords(context.Background(), "user-1")
	if len(recs) != 1 || recs[0].ID != "srv0042" {
		t.Fatalf("uncorrelated record not inserted: %+v", recs)
	}
}

func TestDeletePendingRecordCancelsQueuedCreate(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.fail(apperrors.ErrOffline)

	out, err := h.coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationCreate, Record: ptr(validRecord())})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := h.coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationDelete, ID: out.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if pending, _ := h.queue.Pending(context.Background()); pending != 0 {
		t.Fatalf("queued create survived delete, %d pending", pending)
	}
	recs, _ := h.cache.ListRecords(context.Background(), "user-1")
	if len(recs) != 0 {
		t.Fatalf("deleted record still cached: %+v", recs)
	}
}

func TestCreateGoalRejectsNonPositiveTarget(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.coord.Apply(context.Background(), domain.Mutation{
		Kind: domain.MutationCreate,
		Goal: &domain.Goal{Name: "Writing", TargetWeekMs: 0},
	})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

type appliedPut struct {
	collection string
	key        string
	body       json.RawMessage
}

// recordingApplier accepts every replay and remembers it, standing in
// for a live docstore connection during drain.
type recordingApplier struct {
	mu   sync.Mutex
	puts []appliedPut
}

func (a *recordingApplier) Put(_ context.Context, collection, key string, body json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.puts = append(a.puts, appliedPut{collection: collection, key: key, body: body})
	return nil
}

func (a *recordingApplier) Delete(_ context.Context, _, _ string) error { return nil }

// The offline create path must survive the real queue's validation: a
// server-assigned id means the queued put carries no key, only the
// LocalRef inside its payload.
func TestOfflineCreateQueuesThroughRealOutbox(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := fixedClock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}

	queueStore, err := outboxadapter.NewSQLiteQueueStore(filepath.Join(t.TempDir(), "tempo.db"))
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	applier := &recordingApplier{}
	queue := outboxusecase.NewInteractor(outboxservice.NewOutboxService(clk, queueStore, applier, nil))

	cache := newMemCache()
	store := &scriptedStore{}
	store.fail(apperrors.ErrOffline)
	coord := service.NewCoordinator(clk, &seqGen{}, "user-1", cache, store, queue, nil, &recordingNotifier{}, nil)

	out, err := coord.Apply(ctx, domain.Mutation{Kind: domain.MutationCreate, Record: ptr(validRecord())})
	if err != nil {
		t.Fatalf("offline create must queue, not fail: %v", err)
	}
	if !out.Queued {
		t.Fatal("offline create not reported as queued")
	}
	items, err := queue.List(ctx)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("want one queued mutation, got %d", len(items))
	}
	if items[0].Key != "" {
		t.Fatalf("queued create must leave the key to the server, got %q", items[0].Key)
	}
	if items[0].LocalID != out.ID {
		t.Fatalf("queued item local id %q does not match placeholder %q", items[0].LocalID, out.ID)
	}

	drained, err := queue.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if drained.Drained != 1 || drained.Remaining != 0 {
		t.Fatalf("drain got %+v", drained)
	}
	if len(applier.puts) != 1 || applier.puts[0].collection != domain.SessionCollection || applier.puts[0].key != "" {
		t.Fatalf("replayed put malformed: %+v", applier.puts)
	}
}

func TestOfflineGoalCreateQueuesThroughRealOutbox(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := fixedClock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}

	queueStore, err := outboxadapter.NewSQLiteQueueStore(filepath.Join(t.TempDir(), "tempo.db"))
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	queue := outboxusecase.NewInteractor(outboxservice.NewOutboxService(clk, queueStore, &recordingApplier{}, nil))

	store := &scriptedStore{}
	store.fail(apperrors.ErrOffline)
	coord := service.NewCoordinator(clk, &seqGen{}, "user-1", newMemCache(), store, queue, nil, &recordingNotifier{}, nil)

	out, err := coord.Apply(ctx, domain.Mutation{
		Kind: domain.MutationCreate,
		Goal: &domain.Goal{Name: "Writing", TargetWeekMs: 5 * 60 * 60 * 1000},
	})
	if err != nil {
		t.Fatalf("offline goal create must queue, not fail: %v", err)
	}
	if !out.Queued {
		t.Fatal("offline goal create not reported as queued")
	}
	if pending, _ := queue.Pending(ctx); pending != 1 {
		t.Fatalf("want one queued mutation, got %d", pending)
	}
}

type countingTx struct {
	mu sync.Mutex
	n  int
}

func (c *countingTx) Within(ctx context.Context, fn func(context.Context) error) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return fn(ctx)
}

func TestApplyRunsInsideTxBoundary(t *testing.T) {
	t.Parallel()
	txm := &countingTx{}
	clk := fixedClock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
	coord := service.NewCoordinator(clk, &seqGen{}, "user-1", newMemCache(), &scriptedStore{}, &memQueue{}, txm, &recordingNotifier{}, nil)

	if _, err := coord.Apply(context.Background(), domain.Mutation{Kind: domain.MutationCreate, Record: ptr(validRecord())}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if txm.n != 1 {
		t.Fatalf("want one tx scope per mutation, got %d", txm.n)
	}
}

func ptr(rec domain.Record) *domain.Record { return &rec }

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}
