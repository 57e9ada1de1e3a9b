package cosmos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/watermark"
)

// watermarkDoc is the control-container document shape, partitioned by id.
type watermarkDoc struct {
	ID                         string     `json:"id"`
	TemplateID                 string     `json:"template_id"`
	SubjectID                  string     `json:"subject_id"`
	Status                     string     `json:"status"`
	LastExportedAt             *time.Time `json:"last_exported_at,omitempty"`
	LastExportedCompositionUID string     `json:"last_exported_composition_uid,omitempty"`
	CompositionsExportedCount  int64      `json:"compositions_exported_count"`
	LastRunStartedAt           *time.Time `json:"last_run_started_at,omitempty"`
	LastRunCompletedAt         *time.Time `json:"last_run_completed_at,omitempty"`
	LastError                  string     `json:"last_error,omitempty"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

func (s *Store) controlContainer() (*azcosmos.ContainerClient, error) {
	return s.database.NewContainer(s.controlName)
}

// Load implements watermark.Store against the control container.
func (s *Store) Load(ctx context.Context, id string) (*watermark.Watermark, error) {
	container, err := s.controlContainer()
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.TargetConnection, err, "resolving control container")
	}

	pk := azcosmos.NewPartitionKeyString(id)
	resp, err := container.ReadItem(ctx, pk, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, atlaserrors.Wrap(atlaserrors.TargetQueryFailed, err, "loading watermark %s", id)
	}

	var doc watermarkDoc
	if err := json.Unmarshal(resp.Value, &doc); err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Transformation, err, "decoding watermark %s", id)
	}
	return fromDoc(doc)
}

// Save implements watermark.Store against the control container.
func (s *Store) Save(ctx context.Context, w watermark.Watermark) error {
	container, err := s.controlContainer()
	if err != nil {
		return atlaserrors.Wrap(atlaserrors.TargetConnection, err, "resolving control container")
	}

	raw, err := json.Marshal(toDoc(w))
	if err != nil {
		return atlaserrors.Wrap(atlaserrors.Transformation, err, "marshalling watermark %s", w.ID)
	}

	pk := azcosmos.NewPartitionKeyString(w.ID)
	if _, err := container.UpsertItem(ctx, pk, raw, nil); err != nil {
		return atlaserrors.Wrap(atlaserrors.TargetInsertFailed, err, "saving watermark %s", w.ID)
	}
	return nil
}

func toDoc(w watermark.Watermark) watermarkDoc {
	return watermarkDoc{
		ID:                         w.ID,
		TemplateID:                 w.TemplateID.String(),
		SubjectID:                  w.SubjectID.String(),
		Status:                     string(w.Status),
		LastExportedAt:             w.LastExportedAt,
		LastExportedCompositionUID: w.LastExportedCompositionUID,
		CompositionsExportedCount:  w.CompositionsExportedCount,
		LastRunStartedAt:           w.LastRunStartedAt,
		LastRunCompletedAt:         w.LastRunCompletedAt,
		LastError:                  w.LastError,
		UpdatedAt:                  w.UpdatedAt,
	}
}

func fromDoc(doc watermarkDoc) (*watermark.Watermark, error) {
	tid, err := ids.NewTemplateId(doc.TemplateID)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.State, err, "parsing stored template id for watermark %s", doc.ID)
	}
	sid, err := ids.NewSubjectId(doc.SubjectID)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.State, err, "parsing stored subject id for watermark %s", doc.ID)
	}

	return &watermark.Watermark{
		ID:                         doc.ID,
		TemplateID:                 tid,
		SubjectID:                  sid,
		Status:                     watermark.ExportStatus(doc.Status),
		LastExportedAt:             doc.LastExportedAt,
		LastExportedCompositionUID: doc.LastExportedCompositionUID,
		CompositionsExportedCount:  doc.CompositionsExportedCount,
		LastRunStartedAt:           doc.LastRunStartedAt,
		LastRunCompletedAt:         doc.LastRunCompletedAt,
		LastError:                  doc.LastError,
		UpdatedAt:                  doc.UpdatedAt,
	}, nil
}
