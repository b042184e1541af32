package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("yaml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat("json"), WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Get().Info(context.Background(), "fix applied",
		String("entity_id", "cow-1"),
		Int("vertices", 4),
		Bool("alerted", true),
		Duration("took", 3*time.Millisecond),
		Error(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "fix applied" {
		t.Errorf("unexpected msg: %v", rec["msg"])
	}
	if rec["entity_id"] != "cow-1" {
		t.Errorf("unexpected entity_id: %v", rec["entity_id"])
	}
	src, _ := rec["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("expected caller to point at the test file, got %q", src)
	}
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("evaluator").Info(context.Background(), "hello")
	if !strings.Contains(buf.String(), "component=evaluator") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error", ""} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q should be accepted: %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}

	_ = SetLevelString("error")
	Get().Info(context.Background(), "suppressed")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at error level, got %q", buf.String())
	}
	_ = SetLevelString("info")
}
