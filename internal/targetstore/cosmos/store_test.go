package cosmos

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/atlas-health/atlas/internal/transform"
)

func TestToDocumentStampsIdentityFields(t *testing.T) {
	rec := transform.Record{
		ID:             "84d7c3f5::local.ehrbase.org::1",
		SubjectID:      "ehr-1",
		TemplateID:     "vitals.v1",
		CompositionUID: "84d7c3f5::local.ehrbase.org::1",
		TimeCommitted:  time.Now(),
		Data:           json.RawMessage(`{"content":{"foo":"bar"}}`),
	}

	out, err := toDocument(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshalling document: %v", err)
	}

	if doc["id"] != rec.ID {
		t.Fatalf("expected id %s, got %v", rec.ID, doc["id"])
	}
	if doc["subject_id"] != rec.SubjectID {
		t.Fatalf("expected subject_id %s, got %v", rec.SubjectID, doc["subject_id"])
	}
	if doc["composition_uid"] != rec.CompositionUID {
		t.Fatalf("expected composition_uid %s, got %v", rec.CompositionUID, doc["composition_uid"])
	}
}
