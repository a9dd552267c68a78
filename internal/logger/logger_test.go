package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestJSONOutsideLocal(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	l := NewWithOutput(&buf)
	if l.Logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %s, want warn", l.Logger.GetLevel())
	}
	l.WithError(errors.New("boom")).Warn("failed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["error"] != "boom" || line["msg"] != "failed" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestWithRequestKeepsCallerID(t *testing.T) {
	t.Setenv("ENVIRONMENT", "local")
	var buf bytes.Buffer
	l := NewWithOutput(&buf)

	r := httptest.NewRequest("POST", "/api/asr", nil)
	r.Header.Set("X-Request-ID", "req-42")
	entry := l.WithRequest(r)
	if entry.Data["req_id"] != "req-42" {
		t.Fatalf("req_id = %v", entry.Data["req_id"])
	}
	if entry.Data["path"] != "/api/asr" {
		t.Fatalf("path = %v", entry.Data["path"])
	}
}

func TestRequestIDGeneratesOnce(t *testing.T) {
	r := httptest.NewRequest("GET", "/healthz", nil)
	first := RequestID(r)
	if first == "" {
		t.Fatal("expected generated id")
	}
	if second := RequestID(r); second != first {
		t.Fatalf("id changed: %q -> %q", first, second)
	}
}

func TestComponentTagsEntry(t *testing.T) {
	e := Component(Discard(), "retry")
	if e.Data["component"] != "retry" {
		t.Fatalf("component = %v", e.Data["component"])
	}
}
