package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		" warn": slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLogger_WritesAttrsAndError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{App: "gw", Writer: &buf, JSONFormat: true}).With("component", "ratelimit")

	l.Error(context.Background(), errors.New("boom"), "store failed", "policy", "auth")

	out := buf.String()
	for _, want := range []string{`"app":"gw"`, `"component":"ratelimit"`, `"policy":"auth"`, `"err":"boom"`, `"msg":"store failed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output, got %s", want, out)
		}
	}
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Writer: &buf, Level: slog.LevelWarn})

	l.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	l.Warn(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}

func TestLogger_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Writer: &buf, JSONFormat: true})

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	l.Info(ctx, "traced")
	if !strings.Contains(buf.String(), span.SpanContext().TraceID().String()) {
		t.Fatalf("expected trace_id in output, got %s", buf.String())
	}
}

func TestFromContext_FallsBackToNop(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected non-nil fallback logger")
	}

	var buf bytes.Buffer
	l := New(Options{Writer: &buf})
	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Info(ctx, "from ctx")
	if !strings.Contains(buf.String(), "from ctx") {
		t.Fatalf("expected logger from context to be used")
	}
}
