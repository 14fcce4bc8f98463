package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"studyhub/backend/internal/events"
)

func TestNewEventProducer_NilProvider_ReturnsNoop(t *testing.T) {
	p := NewEventProducer(nil)
	if p == nil {
		t.Fatal("NewEventProducer(nil) returned nil")
	}
	if err := p.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(ctx, nil): %v", err)
	}
	if err := p.Emit(context.Background(), &events.Event{UserID: "user1"}); err != nil {
		t.Errorf("noop Emit(ctx, event): %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	p := NewEventProducer(provider)
	if err := p.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	cap := &recordCapture{}
	p := NewEventProducerWithLogger(cap)
	now := time.Now().UTC()
	event := &events.Event{
		Type:       events.TypeLoginSucceeded,
		UserID:     "user1",
		SessionID:  "sess1",
		Email:      "jan@uva.nl",
		IPAddress:  "10.0.0.1",
		OccurredAt: now,
	}
	if err := p.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.rec

	if got := rec.Body().AsString(); got != string(events.TypeLoginSucceeded) {
		t.Errorf("body = %q, want %q", got, events.TypeLoginSucceeded)
	}
	if !rec.Timestamp().Equal(now) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), now)
	}

	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"user_id": "user1", "session_id": "sess1",
		"email": "jan@uva.nl", "ip_address": "10.0.0.1",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}
