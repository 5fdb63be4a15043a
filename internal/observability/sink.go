// Package observability records pipeline events. Recording never fails the
// caller: a sink that panics is recovered and the event dropped.
package observability

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Event types recorded by the router and device merge.
const (
	EventClassification = "classification"
	EventInputBlocked   = "input_blocked"
	EventInputInvalid   = "input_invalid"
	EventOutputBlocked  = "output_blocked"
	EventEscalation     = "escalation"
	EventGeneration     = "generation"
	EventModelError     = "model_error"
	EventCompression    = "compression"
	EventDeviceSync     = "device_sync"
	EventSyncSkipped    = "device_sync_skipped"
)

type Sink interface {
	Record(eventType string, payload map[string]any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(string, map[string]any) {}

// ZapSink writes each event as one structured log line.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("events")}
}

func (s *ZapSink) Record(eventType string, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Dropped event", zap.String("event", eventType), zap.Any("panic", r))
		}
	}()

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.String("event", eventType))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, payload[k]))
	}
	s.logger.Info("Event", fields...)
}

// Safe wraps a sink so a panicking implementation cannot reach the caller.
func Safe(sink Sink) Sink {
	if sink == nil {
		return Nop{}
	}
	if _, ok := sink.(*ZapSink); ok {
		return sink
	}
	return safeSink{inner: sink}
}

type safeSink struct {
	inner Sink
}

func (s safeSink) Record(eventType string, payload map[string]any) {
	defer func() {
		_ = recover()
	}()
	s.inner.Record(eventType, payload)
}

// String formats a payload for debugging output.
func String(eventType string, payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := eventType
	for _, k := range keys {
		out += fmt.Sprintf(" %s=%v", k, payload[k])
	}
	return out
}
