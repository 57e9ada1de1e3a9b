package transform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/composition"
)

// flattenPath replaces the path separators openEHR FLAT paths use with
// underscores so a key is safe to use as a column or field name.
func flattenPath(key string) string {
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, ":", "_")
	key = strings.ReplaceAll(key, "|", "_")
	return key
}

// flatten rewrites the composition's top-level content keys into flattened
// fields that sit directly alongside the envelope keys; there is no content
// key in the output. It never recurses into nested objects or arrays, which
// are carried as-is under their derived key (§4.5). Envelope keys win on a
// name collision with a flattened field.
func flatten(c composition.Composition, meta AtlasMetadata) (json.RawMessage, error) {
	var content map[string]any
	if err := json.Unmarshal(c.Content, &content); err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Transformation, err, "decoding content for flattening")
	}

	doc := make(map[string]any, len(content)+6)
	for k, v := range content {
		doc[flattenPath(k)] = v
	}

	doc["id"] = c.UID.String()
	doc["subject_id"] = c.SubjectID.String()
	doc["composition_uid"] = c.UID.String()
	doc["template_id"] = c.TemplateID.String()
	doc["time_committed"] = c.TimeCommitted.UTC().Format(time.RFC3339)
	doc["atlas_metadata"] = meta

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Transformation, err, "marshalling flattened composition")
	}
	return out, nil
}
