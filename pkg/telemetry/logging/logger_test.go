package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewDefaultsToJSONInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("visible", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug should be filtered at default level")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if entry["msg"] != "visible" || entry["key"] != "value" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debug("tracing enabled", "component", "rls-engine")

	out := buf.String()
	if !strings.Contains(out, "msg=\"tracing enabled\"") || !strings.Contains(out, "component=rls-engine") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRedactionThroughHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{RedactAttributes: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("resolving attributes",
		"email", "alice@example.com",
		"api_token", "sk-abcdef1234567890")

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Errorf("email not redacted: %s", out)
	}
	if strings.Contains(out, "sk-abcdef1234567890") {
		t.Errorf("token value not masked: %s", out)
	}
}

func TestRedactionCoversWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{RedactAttributes: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.With("owner", "bob@example.org").Info("bound attrs")

	if strings.Contains(buf.String(), "bob@example.org") {
		t.Errorf("With-bound attribute not redacted: %s", buf.String())
	}
}

func TestContextAttrs(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "u-9")

	attrs := ContextAttrs(ctx)
	if len(attrs) != 4 {
		t.Fatalf("attrs = %v", attrs)
	}
	if attrs[0] != "request_id" || attrs[1] != "req-1" {
		t.Errorf("request id attrs = %v", attrs[:2])
	}
	if attrs[2] != "user_id" || attrs[3] != "u-9" {
		t.Errorf("user id attrs = %v", attrs[2:])
	}

	if got := ContextAttrs(context.Background()); len(got) != 0 {
		t.Errorf("empty context attrs = %v", got)
	}
}
