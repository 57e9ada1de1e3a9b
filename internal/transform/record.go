package transform

import (
	"encoding/json"
	"time"

	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/config"
)

// AtlasMetadata is the envelope every transformed document carries,
// regardless of shape, recording how and when it was produced.
type AtlasMetadata struct {
	ExportedAt   time.Time `json:"exported_at"`
	AtlasVersion string    `json:"atlas_version"`
	ExportMode   string    `json:"export_mode"`
	TemplateID   string    `json:"template_id"`
	Checksum     string    `json:"checksum,omitempty"`
}

// Record is the shape-agnostic result of transforming one composition,
// ready for the Target Store to persist.
type Record struct {
	ID             string
	SubjectID      string
	TemplateID     string
	CompositionUID string
	TimeCommitted  time.Time
	Checksum       string
	Data           json.RawMessage
}

// Transformer reshapes compositions per the configured output format.
type Transformer struct {
	format         config.CompositionFormat
	enableChecksum bool
	atlasVersion   string
	exportMode     string
}

// New constructs a Transformer for the given output format.
func New(format config.CompositionFormat, enableChecksum bool, atlasVersion, exportMode string) *Transformer {
	return &Transformer{format: format, enableChecksum: enableChecksum, atlasVersion: atlasVersion, exportMode: exportMode}
}

// Transform reshapes a single composition into a Record.
func (t *Transformer) Transform(c composition.Composition, exportedAt time.Time) (Record, error) {
	var checksum string
	if t.enableChecksum {
		sum, err := Checksum(c.Content)
		if err != nil {
			return Record{}, err
		}
		checksum = sum
	}

	meta := AtlasMetadata{ExportedAt: exportedAt, AtlasVersion: t.atlasVersion, ExportMode: t.exportMode, TemplateID: c.TemplateID.String(), Checksum: checksum}

	var (
		data json.RawMessage
		err  error
	)
	switch t.format {
	case config.FormatFlatten:
		data, err = flatten(c, meta)
	default:
		data, err = preserve(c, meta)
	}
	if err != nil {
		return Record{}, err
	}

	return Record{
		ID:             c.UID.String(),
		SubjectID:      c.SubjectID.String(),
		TemplateID:     c.TemplateID.String(),
		CompositionUID: c.UID.String(),
		TimeCommitted:  c.TimeCommitted,
		Checksum:       checksum,
		Data:           data,
	}, nil
}
