package otel

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"studyhub/backend/internal/events"
)

// recordEmitter is the subset of otellog.Logger the producer needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventProducer returns an events.Producer that mirrors auth events as OTel
// log records via the given LoggerProvider, so they land in the same backend
// as traces. If provider is nil, returns a no-op producer.
func NewEventProducer(provider *sdklog.LoggerProvider) events.Producer {
	if provider == nil {
		return noopProducer{}
	}
	return &otelProducer{logger: provider.Logger("studyhub.auth.events")}
}

// NewEventProducerWithLogger is like NewEventProducer with an explicit logger. For tests.
func NewEventProducerWithLogger(logger recordEmitter) events.Producer {
	return &otelProducer{logger: logger}
}

type noopProducer struct{}

func (noopProducer) Emit(context.Context, *events.Event) error { return nil }
func (noopProducer) Close() error                              { return nil }

type otelProducer struct {
	logger recordEmitter
}

// Emit converts the auth event to an OTel log record and emits it. Best-effort.
func (p *otelProducer) Emit(ctx context.Context, event *events.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.OccurredAt.IsZero() {
		rec.SetTimestamp(event.OccurredAt)
	}
	rec.SetBody(otellog.StringValue(string(event.Type)))
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", event.SessionID))
	}
	if event.Email != "" {
		rec.AddAttributes(otellog.String("email", event.Email))
	}
	if event.IPAddress != "" {
		rec.AddAttributes(otellog.String("ip_address", event.IPAddress))
	}
	p.logger.Emit(ctx, rec)
	return nil
}

func (p *otelProducer) Close() error { return nil }
