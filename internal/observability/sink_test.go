package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapSink_Record(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Record(EventClassification, map[string]any{
		"intent":     "education",
		"complexity": 2,
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Event", entries[0].Message)
	assert.Equal(t, "events", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, EventClassification, fields["event"])
	assert.Equal(t, "education", fields["intent"])
	assert.EqualValues(t, 2, fields["complexity"])
}

type explodingMarshaler struct{}

func (explodingMarshaler) MarshalLogObject(zapcore.ObjectEncoder) error {
	panic("boom")
}

func TestZapSink_RecoversFromPanics(t *testing.T) {
	buf := &bytes.Buffer{}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(buf), zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	assert.NotPanics(t, func() {
		sink.Record(EventGeneration, map[string]any{"bad": explodingMarshaler{}})
	})
	assert.NotPanics(t, func() {
		sink.Record(EventGeneration, nil)
	})

	out := buf.String()
	assert.Contains(t, out, `"msg":"Dropped event"`)
	assert.Equal(t, 1, strings.Count(out, `"msg":"Event"`))
}

type panickingSink struct{}

func (panickingSink) Record(string, map[string]any) { panic("sink down") }

type recordingSink struct{ events []string }

func (r *recordingSink) Record(eventType string, _ map[string]any) {
	r.events = append(r.events, eventType)
}

func TestSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		Safe(panickingSink{}).Record(EventDeviceSync, nil)
	})
	assert.NotPanics(t, func() {
		Safe(nil).Record(EventDeviceSync, nil)
	})

	rec := &recordingSink{}
	Safe(rec).Record(EventCompression, nil)
	assert.Equal(t, []string{EventCompression}, rec.events)
}

func TestString(t *testing.T) {
	got := String(EventEscalation, map[string]any{"score": 4, "intent": "portfolio"})
	assert.Equal(t, "escalation intent=portfolio score=4", got)
}
