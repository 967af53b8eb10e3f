// Package notify delivers change reports.
package notify

import (
	"context"
	"log/slog"
)

// Sink delivers a report. Delivery failures are logged by the sink itself.
type Sink interface {
	Broadcast(ctx context.Context, text string)
	SendToOne(ctx context.Context, text, recipientID string)
}

// LogSink writes reports to a logger instead of sending them.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a sink that logs to l, or to slog.Default when l is nil.
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{log: l}
}

func (s *LogSink) Broadcast(ctx context.Context, text string) {
	s.log.InfoContext(ctx, "debug mode, not sending", "message", text)
}

func (s *LogSink) SendToOne(ctx context.Context, text, recipientID string) {
	s.log.InfoContext(ctx, "debug mode, not sending", "recipient", recipientID, "message", text)
}
