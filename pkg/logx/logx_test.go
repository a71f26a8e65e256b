package logx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerTagsComponent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	defer ReplaceCore(core)()

	NewLogger("dispatch").Info("drained %d items", 3)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "drained 3 items" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	if got := entries[0].ContextMap()["component"]; got != "dispatch" {
		t.Errorf("expected component dispatch, got %v", got)
	}
}

func TestLoggerCreatedBeforeReplaceUsesNewCore(t *testing.T) {
	l := NewLogger("early")
	l.Info("before")

	core, logs := observer.New(zapcore.InfoLevel)
	restore := ReplaceCore(core)
	l.Warn("after")
	restore()

	if logs.Len() != 1 || logs.All()[0].Message != "after" {
		t.Fatalf("expected only the post-replace entry, got %+v", logs.All())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	defer ReplaceCore(core)()
	SetDebug(true)
	defer SetDebug(false)
	SetDebugDomains([]string{"rag"})
	defer SetDebugDomains(nil)

	ctx := ContextWithComponent(context.Background(), "pipeline")
	Debug(ctx, "rag", "terms=%d", 4)
	Debug(ctx, "dispatch", "should be filtered")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 debug entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["domain"] != "rag" || fields["component"] != "pipeline" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestDebugDisabled(t *testing.T) {
	SetDebug(false)
	if IsDebugEnabledForDomain("anything") {
		t.Error("debug should be disabled")
	}
}

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Configure(Options{Level: LevelInfo, Format: FormatJSON, Output: &buf}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	defer func() { _ = Configure(Options{Level: LevelInfo, Format: FormatConsole}) }()

	NewLogger("cfg").Info("hello")
	out := buf.String()
	if !strings.Contains(out, `"component":"cfg"`) || !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("unexpected json output: %s", out)
	}
}

func TestConfigureRejectsBadInput(t *testing.T) {
	if err := Configure(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := Configure(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestWrap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	defer ReplaceCore(core)()

	if Wrap(nil, "noop") != nil {
		t.Error("wrapping nil should return nil")
	}
	base := errors.New("boom")
	err := Wrap(base, "open store")
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if err.Error() != "open store: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Error("expected the wrapped error to be logged")
	}
}
