// Package transform reshapes a fetched composition into the document or row
// the Target Store persists: content-preserving or flattened, with an
// optional deterministic checksum (§4.5, §4.6).
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/atlas-health/atlas/internal/atlaserrors"
)

// Checksum returns the SHA-256 hex digest of data's canonical JSON form.
// Object keys are sorted recursively and the result is never pretty-printed,
// so the digest is identical regardless of the key order or nesting depth
// used to construct data.
func Checksum(data json.RawMessage) (string, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", atlaserrors.Wrap(atlaserrors.Transformation, err, "decoding content for checksum")
	}

	canonical, err := json.Marshal(normalize(decoded))
	if err != nil {
		return "", atlaserrors.Wrap(atlaserrors.Transformation, err, "marshalling normalized content")
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// normalize rebuilds nested maps and slices so that encoding/json's
// documented sorted-key object marshalling applies at every depth, not just
// the top level.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			out[k] = normalize(nested)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return val
	}
}
