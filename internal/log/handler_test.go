package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	ctxlog "github.com/ErlanBelekov/offboarding-scheduler/internal/log"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/requestid"
)

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(ctxlog.NewContextHandler(slog.NewTextHandler(buf, nil)))
}

func TestContextHandler_AddsRequestIDAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf).With("component", "test")

	ctx := requestid.WithRequestID(context.Background(), "req-9")
	ctx = ctxlog.WithAttrs(ctx, slog.String("tenant_id", "t1"))
	ctx = ctxlog.WithAttrs(ctx, slog.String("scheduled_action_id", "sa-1"))
	logger.InfoContext(ctx, "hello")

	line := buf.String()
	for _, want := range []string{"component=test", "request_id=req-9", "tenant_id=t1", "scheduled_action_id=sa-1"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestContextHandler_WithAttrsDoesNotLeakToParent(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf)

	parent := ctxlog.WithAttrs(context.Background(), slog.String("tenant_id", "t1"))
	_ = ctxlog.WithAttrs(parent, slog.String("scheduled_action_id", "sa-1"))
	logger.InfoContext(parent, "parent")

	if strings.Contains(buf.String(), "scheduled_action_id") {
		t.Errorf("child attrs leaked into parent: %s", buf.String())
	}
}

func TestContextHandler_PlainContext(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf).Info("no context values")

	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected request_id: %s", buf.String())
	}
}
