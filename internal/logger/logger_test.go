package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestBuild_JSONFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Build(Config{Level: "warn", Component: "tileserver"}, &buf)

	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	l.Warn().Msg("kept")
	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "kept" || rec["level"] != "warn" || rec["component"] != "tileserver" {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["timestamp"]; !ok {
		t.Fatalf("expected timestamp field in %v", rec)
	}
}

func TestFromContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	base := Build(Config{Level: "debug"}, &buf)

	ctx := WithRequestID(context.Background(), "abc123")
	FromContext(ctx, &base).Info().Msg("hello")

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["request_id"] != "abc123" {
		t.Fatalf("request_id=%v want abc123", rec["request_id"])
	}

	if id := RequestID(WithRequestID(context.Background(), "")); len(id) != 16 {
		t.Fatalf("expected generated 16 char id, got %q", id)
	}
}
