package transform

import (
	"encoding/json"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/composition"
)

// preserveDocument nests the original FLAT content under a content key
// instead of reshaping it, for consumers that want the source structure
// untouched.
type preserveDocument struct {
	ID             string          `json:"id"`
	SubjectID      string          `json:"subject_id"`
	CompositionUID string          `json:"composition_uid"`
	TemplateID     string          `json:"template_id"`
	TimeCommitted  string          `json:"time_committed"`
	Content        json.RawMessage `json:"content"`
	AtlasMetadata  AtlasMetadata   `json:"atlas_metadata"`
}

func preserve(c composition.Composition, meta AtlasMetadata) (json.RawMessage, error) {
	doc := preserveDocument{
		ID:             c.UID.String(),
		SubjectID:      c.SubjectID.String(),
		CompositionUID: c.UID.String(),
		TemplateID:     c.TemplateID.String(),
		TimeCommitted:  c.TimeCommitted.UTC().Format(time.RFC3339),
		Content:        c.Content,
		AtlasMetadata:  meta,
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Transformation, err, "marshalling preserved composition")
	}
	return out, nil
}
