// Package composition defines the clinical document records that flow
// through the export pipeline.
package composition

import (
	"encoding/json"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/ids"
)

// Metadata is the tuple returned by AQL listings: everything about a
// composition except its content.
type Metadata struct {
	UID           ids.CompositionUid
	SubjectID     ids.SubjectId
	TemplateID    ids.TemplateId
	TimeCommitted time.Time
}

// Composition is a full clinical document: metadata plus its FLAT content.
type Composition struct {
	UID           ids.CompositionUid
	SubjectID     ids.SubjectId
	TemplateID    ids.TemplateId
	TimeCommitted time.Time
	Content       json.RawMessage
}

// Builder constructs a Composition, failing if any required field is absent.
type Builder struct {
	uid           *ids.CompositionUid
	subjectID     *ids.SubjectId
	templateID    *ids.TemplateId
	timeCommitted *time.Time
	content       json.RawMessage
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) UID(u ids.CompositionUid) *Builder {
	b.uid = &u
	return b
}

func (b *Builder) SubjectID(s ids.SubjectId) *Builder {
	b.subjectID = &s
	return b
}

func (b *Builder) TemplateID(t ids.TemplateId) *Builder {
	b.templateID = &t
	return b
}

func (b *Builder) TimeCommitted(t time.Time) *Builder {
	b.timeCommitted = &t
	return b
}

func (b *Builder) Content(c json.RawMessage) *Builder {
	b.content = c
	return b
}

// Build validates that every field was set and returns the Composition.
func (b *Builder) Build() (Composition, error) {
	if b.uid == nil {
		return Composition{}, atlaserrors.New(atlaserrors.Validation, "composition missing uid")
	}
	if b.subjectID == nil {
		return Composition{}, atlaserrors.New(atlaserrors.Validation, "composition missing subject_id")
	}
	if b.templateID == nil {
		return Composition{}, atlaserrors.New(atlaserrors.Validation, "composition missing template_id")
	}
	if b.timeCommitted == nil {
		return Composition{}, atlaserrors.New(atlaserrors.Validation, "composition missing time_committed")
	}
	if b.content == nil {
		return Composition{}, atlaserrors.New(atlaserrors.Validation, "composition missing content")
	}
	return Composition{
		UID:           *b.uid,
		SubjectID:     *b.subjectID,
		TemplateID:    *b.templateID,
		TimeCommitted: *b.timeCommitted,
		Content:       b.content,
	}, nil
}

// Metadata returns the metadata-only view of this composition.
func (c Composition) Metadata() Metadata {
	return Metadata{
		UID:           c.UID,
		SubjectID:     c.SubjectID,
		TemplateID:    c.TemplateID,
		TimeCommitted: c.TimeCommitted,
	}
}
