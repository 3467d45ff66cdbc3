package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tempo/internal/modules/notify/domain"
	"tempo/internal/modules/notify/service"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingSink struct {
	events []domain.Event
	err    error
}

func (s *recordingSink) Notify(_ context.Context, event domain.Event) error {
	s.events = append(s.events, event)
	return s.err
}

func TestDispatcherStampsAndFansOut(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := &recordingSink{}
	second := &recordingSink{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	d := service.NewDispatcher(fixedClock{now: now}, logger, first, second)
	d.Success(context.Background(), "session saved", "25m focus")

	for _, sink := range []*recordingSink{first, second} {
		if len(sink.events) != 1 {
			t.Fatalf("sink got %d events, want 1", len(sink.events))
		}
		event := sink.events[0]
		if event.Level != domain.LevelSuccess || event.Title != "session saved" {
			t.Fatalf("unexpected event: %+v", event)
		}
		if !event.At.Equal(now) {
			t.Fatalf("event not stamped with clock time: %v", event.At)
		}
	}
}

func TestDispatcherSurvivesFailingSink(t *testing.T) {
	t.Parallel()
	broken := &recordingSink{err: errors.New("plugin crashed")}
	healthy := &recordingSink{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	d := service.NewDispatcher(fixedClock{now: time.Now()}, logger, broken, healthy)
	d.Error(context.Background(), "save failed", "rolled back")

	if len(healthy.events) != 1 {
		t.Fatalf("healthy sink got %d events, want 1", len(healthy.events))
	}
}
