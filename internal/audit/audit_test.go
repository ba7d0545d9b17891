package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"aegis.org/internal/obs"
)

func TestLogSinkRecord(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := WithRequestID(context.Background(), "req-123")
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	NewLogSink().Record(ctx, LoginFailed, "alice", at)

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != string(LoginFailed) {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["identity"] != "alice" {
		t.Fatalf("unexpected identity: %v", entry["identity"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["ts"] != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp: %v", entry["ts"])
	}
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := context.Background()
	if got := WithRequestID(ctx, "   "); got != ctx {
		t.Fatal("blank request id should not modify context")
	}
}
