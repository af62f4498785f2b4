package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitializeFromEnvDisabled(t *testing.T) {
	t.Setenv("NAVCONSOLE_TELEMETRY", "")
	t.Setenv("HONEYCOMB_API_KEY", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	if Enabled() {
		t.Fatal("telemetry should be disabled without configuration")
	}
	cleanup, err := InitializeFromEnv(context.Background())
	if err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	if err := cleanup(context.Background()); err != nil {
		t.Errorf("cleanup() error = %v", err)
	}
}

func TestEndSpanRecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	UseTracerProvider(tp)
	t.Cleanup(func() { tracer = nil })

	_, span := StartSpan(context.Background(), "orchestrator.submit", RequestAttributes("server", "abc"))
	EndSpan(span, errors.New("backend unavailable"))

	_, ok := StartSpan(context.Background(), "orchestrator.cancel")
	EndSpan(ok, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want error", spans[0].Status().Code)
	}
	if spans[1].Status().Code == codes.Error {
		t.Errorf("successful span marked as error")
	}

	found := false
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "navconsole.request_id" && attr.Value.AsString() == "abc" {
			found = true
		}
	}
	if !found {
		t.Errorf("request id attribute missing: %v", spans[0].Attributes())
	}
}
