package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"emeet/backend/internal/telemetry"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), &telemetry.Event{SessionID: "s1"}); err != nil {
		t.Errorf("noop Emit(ctx, event): %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if err := NewEventEmitter(provider).Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
}

type recordCapture struct {
	rec   otellog.Record
	calls int
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.rec = rec
	r.calls++
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := em.Emit(context.Background(), &telemetry.Event{
		SessionID: "sess1",
		UserID:    "user1",
		Type:      "meeting.ended",
		Source:    "sweep",
		Metadata:  []byte(`{"trigger":"sweep"}`),
		At:        at,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if capture.calls != 1 {
		t.Fatalf("calls = %d", capture.calls)
	}
	if !capture.rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", capture.rec.Timestamp(), at)
	}
	if got := string(capture.rec.Body().AsBytes()); got != `{"trigger":"sweep"}` {
		t.Errorf("body = %q", got)
	}
	attrs := map[string]string{}
	capture.rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"session_id": "sess1",
		"user_id":    "user1",
		"event_type": "meeting.ended",
		"source":     "sweep",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEmit_ZeroTimestampDefaultsToNow(t *testing.T) {
	capture := &recordCapture{}
	before := time.Now().Add(-time.Second)
	if err := NewEventEmitterWithLogger(capture).Emit(context.Background(), &telemetry.Event{Type: "x"}); err != nil {
		t.Fatal(err)
	}
	if capture.rec.Timestamp().Before(before) {
		t.Errorf("timestamp %v not defaulted", capture.rec.Timestamp())
	}
}

func TestEmit_OmitsEmptyAttributes(t *testing.T) {
	capture := &recordCapture{}
	_ = NewEventEmitterWithLogger(capture).Emit(context.Background(), &telemetry.Event{Type: "room.joined"})
	n := 0
	capture.rec.WalkAttributes(func(otellog.KeyValue) bool { n++; return true })
	if n != 1 {
		t.Errorf("attribute count = %d, want 1", n)
	}
}
