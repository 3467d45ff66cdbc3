package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	historydto "tempo/internal/modules/history/dto"
	outboxdto "tempo/internal/modules/outbox/dto"
	"tempo/internal/modules/session/domain"
	"tempo/internal/modules/session/dto"
	sessionin "tempo/internal/modules/session/port/in"
	"tempo/internal/modules/session/service"
	"tempo/internal/modules/session/usecase"
	apperrors "tempo/internal/platform/errors"
)

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

type seqGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqGen) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id%04d", g.n)
}

type memMirrorCache struct {
	mu     sync.Mutex
	active domain.ActiveSession
	has    bool
}

func (c *memMirrorCache) Save(_ context.Context, active domain.ActiveSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active, c.has = active, true
	return nil
}

func (c *memMirrorCache) Load(_ context.Context) (domain.ActiveSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return domain.ActiveSession{}, apperrors.ErrNotFound
	}
	return c.active, nil
}

func (c *memMirrorCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.has = false
	return nil
}

type scriptedMirrorStore struct {
	mu     sync.Mutex
	err    error
	saved  []domain.ActiveSession
	clears int
}

func (s *scriptedMirrorStore) Save(_ context.Context, active domain.ActiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, active)
	return nil
}

func (s *scriptedMirrorStore) Load(_ context.Context, _ string) (domain.ActiveSession, error) {
	return domain.ActiveSession{}, apperrors.ErrNotFound
}

func (s *scriptedMirrorStore) Clear(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.clears++
	return nil
}

func (s *scriptedMirrorStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type memDraftStore struct {
	mu    sync.Mutex
	notes string
	has   bool
}

func (d *memDraftStore) SaveDraft(_ context.Context, notes string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes, d.has = notes, true
	return nil
}

func (d *memDraftStore) LoadDraft(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notes, nil
}

func (d *memDraftStore) ClearDraft(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes, d.has = "", false
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	created []historydto.CreateRecordInput
	queued  bool
}

func (h *fakeHistory) CreateRecord(_ context.Context, in historydto.CreateRecordInput) (historydto.MutationOutput, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, in)
	id := "srv-" + in.LocalRef
	if h.queued {
		id = in.LocalRef
	}
	return historydto.MutationOutput{ID: id, Queued: h.queued}, nil
}

func (h *fakeHistory) UpdateRecord(_ context.Context, _ historydto.UpdateRecordInput) (historydto.MutationOutput, error) {
	return historydto.MutationOutput{}, nil
}

func (h *fakeHistory) DeleteRecord(_ context.Context, _ string) (historydto.MutationOutput, error) {
	return historydto.MutationOutput{}, nil
}

func (h *fakeHistory) ListRecords(_ context.Context) ([]historydto.RecordOutput, error) {
	return nil, nil
}

func (h *fakeHistory) CreateGoal(_ context.Context, _ historydto.CreateGoalInput) (historydto.MutationOutput, error) {
	return historydto.MutationOutput{}, nil
}

func (h *fakeHistory) DeleteGoal(_ context.Context, _ string) (historydto.MutationOutput, error) {
	return historydto.MutationOutput{}, nil
}

func (h *fakeHistory) ListGoals(_ context.Context) ([]historydto.GoalOutput, error) {
	return nil, nil
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

func (q *memQueue) ops() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ops []string
	for _, item := range q.items {
		ops = append(ops, item.OpType+" "+item.Collection)
	}
	return ops
}

type harness struct {
	uc      sessionin.Usecase
	sync    *service.SyncRuntime
	mirrors *scriptedMirrorStore
	drafts  *memDraftStore
	history *fakeHistory
	queue   *memQueue
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &steppingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Minute}
	svc := service.NewSessionService(clk, &seqGen{}, "user-1", "laptop")
	sync := service.NewSyncRuntime("user-1", nil, &memMirrorCache{}, nil)
	mirrors := &scriptedMirrorStore{}
	drafts := &memDraftStore{}
	history := &fakeHistory{}
	queue := &memQueue{}
	uc := usecase.NewInteractor(svc, sync, mirrors, drafts, history, queue, nil)
	return &harness{uc: uc, sync: sync, mirrors: mirrors, drafts: drafts, history: history, queue: queue}
}

func TestStartRejectsSecondSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.uc.Start(ctx, sessionDTOStart("Writing")); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := h.uc.Start(ctx, sessionDTOStart("Reading"))
	if !errors.Is(err, apperrors.ErrActiveSessionExists) {
		t.Fatalf("want ErrActiveSessionExists, got %v", err)
	}
	if len(h.mirrors.saved) != 1 {
		t.Fatalf("second start must not write the mirror, got %d writes", len(h.mirrors.saved))
	}
}

func TestStartOfflineKeepsOptimisticStateAndQueues(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.mirrors.fail(apperrors.ErrOffline)
	ctx := context.Background()

	out, err := h.uc.Start(ctx, sessionDTOStart("Writing"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !out.Active {
		t.Fatal("offline start must still project an active session")
	}
	if got := h.queue.ops(); len(got) != 1 || got[0] != "put mirrors" {
		t.Fatalf("want one queued mirror put, got %v", got)
	}
	if active, err := h.uc.Active(ctx); err != nil || !active.Active {
		t.Fatalf("projection lost after offline start: %+v %v", active, err)
	}
}

func TestStartHardFailureLeavesProjectionIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.mirrors.fail(errors.New("mirror schema rejected"))
	ctx := context.Background()

	if _, err := h.uc.Start(ctx, sessionDTOStart("Writing")); err == nil {
		t.Fatal("hard failure returned no error")
	}
	if active, _ := h.uc.Active(ctx); active.Active {
		t.Fatal("failed start left an active projection")
	}
	if pending, _ := h.queue.Pending(ctx); pending != 0 {
		t.Fatalf("hard failure must not enqueue, got %d", pending)
	}
}

func TestToggleBreakWhenIdleIsNoOp(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out, err := h.uc.ToggleBreak(context.Background())
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if out.Active {
		t.Fatal("idle toggle invented a session")
	}
	if len(h.mirrors.saved) != 0 {
		t.Fatal("idle toggle wrote the mirror")
	}
}

func TestEndFinalizesClearsAndCorrelates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.uc.Start(ctx, sessionDTOStart("Writing")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.uc.SaveDraft(ctx, "half-written thought"); err != nil {
		t.Fatalf("draft: %v", err)
	}

	out, err := h.uc.End(ctx)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !out.Ended || out.Queued {
		t.Fatalf("online end misreported: %+v", out)
	}
	if len(h.history.created) != 1 {
		t.Fatalf("want one record create, got %d", len(h.history.created))
	}
	if h.history.created[0].LocalRef == "" {
		t.Fatal("finalized record carries no local ref for dedup")
	}
	if h.mirrors.clears != 1 {
		t.Fatalf("want one mirror clear, got %d", h.mirrors.clears)
	}
	if active, _ := h.uc.Active(ctx); active.Active {
		t.Fatal("projection still active after end")
	}
	if notes, _ := h.uc.LoadDraft(ctx); notes != "" {
		t.Fatalf("draft survived end: %q", notes)
	}
}

func TestEndCarriesBreaksIntoRecord(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.uc.Start(ctx, sessionDTOStart("Writing")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.uc.ToggleBreak(ctx); err != nil {
		t.Fatalf("break start: %v", err)
	}
	if _, err := h.uc.ToggleBreak(ctx); err != nil {
		t.Fatalf("break end: %v", err)
	}

	out, err := h.uc.End(ctx)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if out.TotalBreakMs <= 0 {
		t.Fatalf("break time lost in finalize: %+v", out)
	}
	if len(h.history.created) != 1 {
		t.Fatalf("want one record create, got %d", len(h.history.created))
	}

	rec := h.history.created[0]
	if len(rec.Breaks) != 1 {
		t.Fatalf("finalized record dropped its breaks: %+v", rec)
	}
	b := rec.Breaks[0]
	if b.End == nil {
		t.Fatal("finalized record carries an open break")
	}
	if got := b.End.Sub(b.Start).Milliseconds(); got != rec.TotalBreakMs {
		t.Fatalf("break list (%dms) disagrees with TotalBreakMs (%dms)", got, rec.TotalBreakMs)
	}
	span := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	if rec.TotalFocusMs+rec.TotalBreakMs != span {
		t.Fatalf("focus %d + break %d != span %d", rec.TotalFocusMs, rec.TotalBreakMs, span)
	}
}

func TestEndWithNoSessionFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.uc.End(context.Background())
	if !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Fatalf("want ErrNoActiveSession, got %v", err)
	}
}

func TestEndOfflineQueuesMirrorClear(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.uc.Start(ctx, sessionDTOStart("Writing")); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.mirrors.fail(apperrors.ErrOffline)
	h.history.queued = true

	out, err := h.uc.End(ctx)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !out.Queued {
		t.Fatal("offline end not reported as queued")
	}
	ops := h.queue.ops()
	if len(ops) == 0 || ops[len(ops)-1] != "delete mirrors" {
		t.Fatalf("mirror clear not queued, ops %v", ops)
	}
	if active, _ := h.uc.Active(ctx); active.Active {
		t.Fatal("projection still active after offline end")
	}
}

func sessionDTOStart(title string) dto.StartInput {
	return dto.StartInput{Title: title}
}
