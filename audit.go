package goRotate

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/goRotate/internal/audit"
)

// AuditEvent is one security-relevant engine outcome.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine. Emit must
// not block for long; a slow sink fills the buffer and events are dropped
// when Audit.DropIfFull is set.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events as structured records.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink logs successes at Info and failures at Warn. A nil logger uses
// slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
