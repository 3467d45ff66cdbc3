package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tempo/internal/modules/timer/domain"
	"tempo/internal/modules/timer/service"
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

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestTickerEmitsOnlyOnDisplaySecondChange(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	// Each poll advances the fake clock 400ms: seconds flip on some
	// polls and not others.
	clk := &steppingClock{now: start.Add(time.Second), step: 400 * time.Millisecond}

	snaps := make(chan domain.Snapshot, 64)
	ticker := service.NewTickerWithPoll(clk, quietLogger(), time.Millisecond)
	ticker.Start(service.Input{StartedAt: start}, func(s domain.Snapshot) {
		snaps <- s
	})

	seen := []domain.Snapshot{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 5 {
		select {
		case s := <-snaps:
			seen = append(seen, s)
		case <-deadline:
			t.Fatalf("timed out after %d emissions", len(seen))
		}
	}
	ticker.Stop()

	for i := 1; i < len(seen); i++ {
		if seen[i].DisplaySecond() == seen[i-1].DisplaySecond() {
			t.Fatalf("emission %d repeated display second %d", i, seen[i].DisplaySecond())
		}
		if seen[i].DisplaySecond() < seen[i-1].DisplaySecond() {
			t.Fatalf("display seconds went backwards: %d then %d", seen[i-1].DisplaySecond(), seen[i].DisplaySecond())
		}
	}
}

func TestTickerStopLeavesNothingScheduled(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := &steppingClock{now: start, step: time.Second}

	var mu sync.Mutex
	count := 0
	ticker := service.NewTickerWithPoll(clk, quietLogger(), time.Millisecond)
	ticker.Start(service.Input{StartedAt: start}, func(domain.Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	time.Sleep(20 * time.Millisecond)
	ticker.Stop()
	if ticker.Running() {
		t.Fatal("ticker still reports running after Stop")
	}

	mu.Lock()
	settled := count
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := count
	mu.Unlock()
	if after != settled {
		t.Fatalf("callback fired after Stop: %d then %d", settled, after)
	}
}

func TestTickerStartReplacesPreviousRun(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := &steppingClock{now: start, step: 10 * time.Millisecond}

	ticker := service.NewTickerWithPoll(clk, quietLogger(), time.Millisecond)
	ticker.Start(service.Input{StartedAt: start}, func(domain.Snapshot) {})
	ticker.Start(service.Input{StartedAt: start.Add(time.Minute)}, func(domain.Snapshot) {})
	defer ticker.Stop()

	if !ticker.Running() {
		t.Fatal("ticker not running after restart")
	}
}

func TestTickerSurfacesZeroOnInvalidStart(t *testing.T) {
	t.Parallel()
	clk := &steppingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Second}

	snaps := make(chan domain.Snapshot, 1)
	ticker := service.NewTickerWithPoll(clk, quietLogger(), time.Millisecond)
	ticker.Start(service.Input{}, func(s domain.Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})
	defer ticker.Stop()

	select {
	case s := <-snaps:
		if s.SessionMs != 0 || s.BreakMs != 0 {
			t.Fatalf("expected clamped zero snapshot, got %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot emitted for invalid input")
	}
}
