package anonymize

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAuditLoggerNeverWritesPlaintextPII(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	logger, err := NewAuditLogger(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entities := []Entity{
		{Category: CategoryEmail, OriginalValue: "secret@example.com", FieldPath: "patient.email", Confidence: 0.9},
	}
	if err := logger.LogAnonymization("comp-1", "token", entities, 5*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	if strings.Contains(string(raw), "secret@example.com") {
		t.Fatal("audit log must never contain the original PII value")
	}

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	if !scanner.Scan() {
		t.Fatal("expected at least one audit log line")
	}
	var entry map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshalling audit entry: %v", err)
	}
	if entry["composition_id"] != "comp-1" {
		t.Errorf("unexpected composition_id: %v", entry["composition_id"])
	}
}

func TestAuditLoggerDisabledIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "audit.jsonl")

	logger, err := NewAuditLogger(path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := logger.LogAnonymization("comp-1", "token", nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected disabled logger to never create the audit log file")
	}
}
