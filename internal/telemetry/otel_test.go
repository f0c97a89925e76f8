package telemetry_test

import (
	"context"
	"testing"

	"github.com/hpungsan/ghostwrite/internal/telemetry"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("GHOSTWRITE_OTEL_ENDPOINT", "")
	t.Setenv("GHOSTWRITE_OTEL_ENABLED", "")

	shutdown, err := telemetry.Setup(context.Background(), "test-service", "dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetup_NoopWhenDisabled(t *testing.T) {
	t.Setenv("GHOSTWRITE_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("GHOSTWRITE_OTEL_ENABLED", "false")

	shutdown, err := telemetry.Setup(context.Background(), "test-service", "dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTracer_UsableWithoutSetup(t *testing.T) {
	_, span := telemetry.Tracer().Start(context.Background(), "test")
	span.End()
}
