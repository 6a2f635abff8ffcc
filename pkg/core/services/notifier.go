package services

import (
	"context"

	"go.uber.org/zap"
)

// Sink publishes one message to a named channel. The chat transport is
// pluggable; the process always has at least the log sink.
type Sink interface {
	Publish(ctx context.Context, channel, message string) error
}

// Mailer sends one email. *gmailclient.Client satisfies it.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// LogSink writes channel messages to the application log. It is the
// default sink and the fallback when no chat transport is wired.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

// Publish logs the message under the channel name. Never fails.
func (s *LogSink) Publish(_ context.Context, channel, message string) error {
	s.log.Info("channel message",
		zap.String("channel", channel),
		zap.String("message", message))
	return nil
}
