package events

import (
	"context"

	"go.uber.org/zap"
)

// LogSink is the broker-less fallback: events are written to the structured
// log instead of a transport. Used in local runs and as a test double.
type LogSink struct {
	log *zap.SugaredLogger
}

func NewLogSink(log *zap.SugaredLogger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, topic string, payload any) error {
	s.log.Infow("event_published", "topic", topic, "payload", payload)
	return nil
}

var _ Sink = (*LogSink)(nil)
