package otel

import (
	"context"
	"testing"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "test-service", false)
	if err != nil {
		t.Fatalf("NewProviders empty endpoint: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
		t.Fatal("all providers should be non-nil for empty endpoint")
	}
	if err := providers.Shutdown(ctx); err != nil {
		t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), "http://", "test-service", false); err == nil {
		t.Error("endpoint without host should fail")
	}
}
