package prefs

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOperationsEmitSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { tp.Shutdown(ctx) })

	p := newTestPrefs(t)
	p.Save(ctx, "theme", String("dark"))
	p.Get(ctx, "missing")

	bad, _ := New(failingBackend{err: errors.New("disk full")}, "app1")
	bad.Save(ctx, "theme", String("dark"))

	spans := rec.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended spans = %d, want 3", len(spans))
	}

	if spans[0].Name() != "prefs.save" {
		t.Errorf("span[0] = %q, want prefs.save", spans[0].Name())
	}
	foundKey := false
	for _, a := range spans[0].Attributes() {
		if a.Key == "prefs.key" && a.Value.AsString() == "theme" {
			foundKey = true
		}
	}
	if !foundKey {
		t.Error("prefs.save span lacks prefs.key attribute")
	}

	if spans[1].Status().Code == codes.Error {
		t.Error("absent key recorded as span error")
	}
	if spans[2].Status().Code != codes.Error {
		t.Errorf("store failure span status = %v, want Error", spans[2].Status().Code)
	}
}
