package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tempo/internal/modules/notify/domain"
	notifyout "tempo/internal/modules/notify/port/out"
	"tempo/internal/platform/clock"
)

const sinkTimeout = 2 * time.Second

// Dispatcher fans an event out to every configured sink. A failing
// sink is logged and skipped; notification delivery never blocks or
// fails the operation that produced the event.
type Dispatcher struct {
	clk   clock.Clock
	sinks []notifyout.Sink
	log   *logrus.Entry
}

func NewDispatcher(clk clock.Clock, logger *logrus.Logger, sinks ...notifyout.Sink) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{clk: clk, sinks: sinks, log: logger.WithField("component", "notify")}
}

func (d *Dispatcher) Info(ctx context.Context, title, body string) {
	d.dispatch(ctx, domain.Event{Level: domain.LevelInfo, Title: title, Body: body})
}

func (d *Dispatcher) Success(ctx context.Context, title, body string) {
	d.dispatch(ctx, domain.Event{Level: domain.LevelSuccess, Title: title, Body: body})
}

func (d *Dispatcher) Error(ctx context.Context, title, body string) {
	d.dispatch(ctx, domain.Event{Level: domain.LevelError, Title: title, Body: body})
}

func (d *Dispatcher) dispatch(ctx context.Context, event domain.Event) {
	event.At = d.clk.Now()
	for _, sink := range d.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := sink.Notify(sinkCtx, event); err != nil {
			d.log.WithError(err).WithField("title", event.Title).Warn("notification sink failed")
		}
		cancel()
	}
}
