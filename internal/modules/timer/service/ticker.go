package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tempo/internal/modules/timer/domain"
	"tempo/internal/platform/clock"
)

// defaultPoll keeps the recompute cadence well under one display
// second so a second boundary is never missed by more than 250ms.
const defaultPoll = 250 * time.Millisecond

// Input is everything a tick needs: absolute timestamps only. The
// ticker holds no accumulator, so a restarted ticker with the same
// input shows exactly what an uninterrupted one would.
type Input struct {
	StartedAt time.Time
	Breaks    []domain.Break
	OnBreak   bool
}

// Ticker drives the second-granularity display cadence: it polls the
// clock at a sub-second interval and invokes the callback only when
// the visible second changes. There is exactly one scheduled run at a
// time; Start replaces any previous run and Stop leaves nothing
// scheduled.
type Ticker struct {
	clk  clock.Clock
	poll time.Duration
	log  *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTicker(clk clock.Clock, logger *logrus.Logger) *Ticker {
	return NewTickerWithPoll(clk, logger, defaultPoll)
}

func NewTickerWithPoll(clk clock.Clock, logger *logrus.Logger, poll time.Duration) *Ticker {
	if logger == nil {
		logger = logrus.New()
	}
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Ticker{clk: clk, poll: poll, log: logger.WithField("component", "ticker")}
}

// Start begins ticking against the given timestamps, replacing any
// run already in flight. The callback fires once immediately and then
// on every display-second change. A rehydrated caller passes the
// persisted timestamps and gets the same values a continuously
// running instance would have shown.
func (t *Ticker) Start(input Input, emit func(domain.Snapshot)) {
	t.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go t.run(ctx, done, input, emit)
}

// Reset rebaselines a running ticker on fresh timestamps. It never
// resumes from a stale internal delta because there is none to resume.
func (t *Ticker) Reset(input Input, emit func(domain.Snapshot)) {
	t.Start(input, emit)
}

// Stop cancels the scheduled run and waits for it to unwind, so no
// callback can fire after Stop returns.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *Ticker) run(ctx context.Context, done chan struct{}, input Input, emit func(domain.Snapshot)) {
	defer close(done)

	last, err := domain.Compute(t.clk.Now(), input.StartedAt, input.Breaks, input.OnBreak)
	if err != nil {
		// Unusable start timestamp: show zero rather than garbage and
		// end the run, since the input cannot heal mid-flight.
		t.log.WithError(err).Warn("tick input rejected")
		emit(domain.Snapshot{})
		return
	}
	emit(last)

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := domain.Compute(t.clk.Now(), input.StartedAt, input.Breaks, input.OnBreak)
			if err != nil {
				t.log.WithError(err).Warn("tick recompute failed")
				continue
			}
			if snap.DisplaySecond() == last.DisplaySecond() && snap.BreakSecond() == last.BreakSecond() {
				continue
			}
			last = snap
			emit(snap)
		}
	}
}
