package out

import (
	"context"

	"github.com/sirupsen/logrus"

	"tempo/internal/modules/notify/domain"
	notifyout "tempo/internal/modules/notify/port/out"
)

type LogSink struct {
	log *logrus.Entry
}

func NewLogSink(logger *logrus.Logger) notifyout.Sink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{log: logger.WithField("component", "notify")}
}

func (s *LogSink) Notify(_ context.Context, event domain.Event) error {
	entry := s.log.WithField("title", event.Title)
	switch event.Level {
	case domain.LevelError:
		entry.Error(event.Body)
	case domain.LevelSuccess:
		entry.Info(event.Body)
	default:
		entry.Info(event.Body)
	}
	return nil
}
