package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
)

// auditEntry is one line of the audit log: per-detection metadata with a
// hash standing in for the original value. The plaintext PII itself is
// never written to disk.
type auditEntry struct {
	Timestamp        string           `json:"timestamp"`
	CompositionID    string           `json:"composition_id"`
	DetectionsCount  int              `json:"detections_count"`
	Strategy         string           `json:"strategy"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	Detections       []auditDetection `json:"detections"`
}

type auditDetection struct {
	Category   string  `json:"category"`
	FieldPath  string  `json:"field_path"`
	Confidence float64 `json:"confidence"`
	ValueHash  string  `json:"value_hash"`
}

// AuditLogger appends one JSON line per anonymized composition to a log
// file, hashing every detected value with SHA-256 so the audit trail can
// never leak plaintext PII.
type AuditLogger struct {
	mu      sync.Mutex
	path    string
	enabled bool
}

// NewAuditLogger opens (creating parent directories as needed) the audit
// log at path. Passing enabled=false yields a no-op logger.
func NewAuditLogger(path string, enabled bool) (*AuditLogger, error) {
	if enabled {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, atlaserrors.Wrap(atlaserrors.IO, err, "creating audit log directory %s", dir)
			}
		}
	}
	return &AuditLogger{path: path, enabled: enabled}, nil
}

// LogAnonymization appends an audit entry for one anonymized document. It
// is a no-op when the logger is disabled or when called for a dry run.
func (a *AuditLogger) LogAnonymization(compositionID, strategy string, entities []Entity, processingTime time.Duration) error {
	if !a.enabled {
		return nil
	}

	entry := auditEntry{
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		CompositionID:    compositionID,
		DetectionsCount:  len(entities),
		Strategy:         strategy,
		ProcessingTimeMs: processingTime.Milliseconds(),
		Detections:       make([]auditDetection, len(entities)),
	}
	for i, e := range entities {
		entry.Detections[i] = auditDetection{
			Category:   string(e.Category),
			FieldPath:  e.FieldPath,
			Confidence: e.Confidence,
			ValueHash:  hashValue(e.OriginalValue),
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return atlaserrors.Wrap(atlaserrors.Serialization, err, "marshalling audit entry for %s", compositionID)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return atlaserrors.Wrap(atlaserrors.IO, err, "opening audit log %s", a.path)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return atlaserrors.Wrap(atlaserrors.IO, err, "writing audit log entry for %s", compositionID)
	}
	return nil
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
