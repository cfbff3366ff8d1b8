package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true, "info")

	l.Error("upload failed", Fields{"filename": "a.pdf"}, errors.New("disk full"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "upload failed" || entry["level"] != "error" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["filename"] != "a.pdf" || entry["error"] != "disk full" {
		t.Fatalf("fields missing: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false, "warn")

	l.Info("hidden", nil)
	l.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}

	l.Warn("shown", Fields{"rid": "abc"})
	out := buf.String()
	if !strings.Contains(out, "shown") || !strings.Contains(out, "rid=abc") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false, "verbose")
	l.Debug("hidden", nil)
	l.Info("shown", nil)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
