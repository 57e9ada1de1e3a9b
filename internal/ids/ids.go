// Package ids implements the validated identifier types shared by the
// export pipeline: SubjectId, CompositionUid, and TemplateId.
package ids

import (
	"regexp"
	"strings"

	"github.com/atlas-health/atlas/internal/atlaserrors"
)

// SubjectId is an opaque record identifier from the source system
// (called EHR in the openEHR reference server).
type SubjectId struct {
	value string
}

// NewSubjectId validates and constructs a SubjectId.
func NewSubjectId(value string) (SubjectId, error) {
	if strings.TrimSpace(value) == "" {
		return SubjectId{}, atlaserrors.New(atlaserrors.Validation, "subject id must not be empty")
	}
	return SubjectId{value: value}, nil
}

func (s SubjectId) String() string { return s.value }

// CompositionUid is a three-part `{uuid}::{system}::{version}` identifier.
type CompositionUid struct {
	uuid, system, version string
}

// NewCompositionUid parses and validates a composition UID of the form
// "{uuid}::{system}::{version}". Any other arity is rejected.
func NewCompositionUid(value string) (CompositionUid, error) {
	if strings.TrimSpace(value) == "" {
		return CompositionUid{}, atlaserrors.New(atlaserrors.Validation, "composition uid must not be empty")
	}
	parts := strings.Split(value, "::")
	if len(parts) != 3 {
		return CompositionUid{}, atlaserrors.New(atlaserrors.Validation,
			"composition uid %q must have exactly 3 ::-separated parts, got %d", value, len(parts))
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return CompositionUid{}, atlaserrors.New(atlaserrors.Validation,
				"composition uid %q has an empty segment", value)
		}
	}
	return CompositionUid{uuid: parts[0], system: parts[1], version: parts[2]}, nil
}

func (u CompositionUid) BaseUUID() string { return u.uuid }
func (u CompositionUid) System() string   { return u.system }
func (u CompositionUid) Version() string  { return u.version }

func (u CompositionUid) String() string {
	return u.uuid + "::" + u.system + "::" + u.version
}

// TemplateId is an opaque template identifier with a deterministic
// container-name derivation.
type TemplateId struct {
	value string
}

// NewTemplateId validates and constructs a TemplateId.
func NewTemplateId(value string) (TemplateId, error) {
	if strings.TrimSpace(value) == "" {
		return TemplateId{}, atlaserrors.New(atlaserrors.Validation, "template id must not be empty")
	}
	return TemplateId{value: value}, nil
}

func (t TemplateId) String() string { return t.value }

var (
	nonAlnumUnderscore = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatedUnderscore = regexp.MustCompile(`_+`)
)

// ToContainerName derives a deterministic, idempotent container name:
// lowercase, non-alphanumeric/underscore collapsed to "_", runs of "_"
// collapsed to one, leading/trailing "_" trimmed, optional "{prefix}_" prepended.
func (t TemplateId) ToContainerName(prefix string) string {
	lower := strings.ToLower(t.value)
	sanitized := nonAlnumUnderscore.ReplaceAllString(lower, "_")
	sanitized = repeatedUnderscore.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")

	if prefix == "" {
		return sanitized
	}
	return strings.Trim(strings.ToLower(prefix), "_") + "_" + sanitized
}
