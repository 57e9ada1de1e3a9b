package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/watermark"
)

// Load implements watermark.Store against the watermarks table.
func (s *Store) Load(ctx context.Context, id string) (*watermark.Watermark, error) {
	var (
		w                     watermark.Watermark
		templateID, subjectID string
	)

	var lastExportedUID *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, template_id, subject_id, status, last_exported_at,
		       last_exported_composition_uid, compositions_exported_count,
		       last_run_started_at, last_run_completed_at, last_error, updated_at
		FROM watermarks WHERE id = $1`, id,
	).Scan(
		&w.ID, &templateID, &subjectID, &w.Status, &w.LastExportedAt,
		&lastExportedUID, &w.CompositionsExportedCount, &w.LastRunStartedAt,
		&w.LastRunCompletedAt, &w.LastError, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, atlaserrors.Wrap(atlaserrors.TargetQueryFailed, err, "loading watermark %s", id)
	}

	tid, err := ids.NewTemplateId(templateID)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.State, err, "parsing stored template id for watermark %s", id)
	}
	sid, err := ids.NewSubjectId(subjectID)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.State, err, "parsing stored subject id for watermark %s", id)
	}
	w.TemplateID = tid
	w.SubjectID = sid
	if lastExportedUID != nil {
		w.LastExportedCompositionUID = *lastExportedUID
	}
	return &w, nil
}

// Save implements watermark.Store against the watermarks table.
func (s *Store) Save(ctx context.Context, w watermark.Watermark) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watermarks (
			id, template_id, subject_id, status, last_exported_at,
			last_exported_composition_uid, compositions_exported_count,
			last_run_started_at, last_run_completed_at, last_error, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (id) DO UPDATE SET
			status                         = EXCLUDED.status,
			last_exported_at               = EXCLUDED.last_exported_at,
			last_exported_composition_uid  = EXCLUDED.last_exported_composition_uid,
			compositions_exported_count    = EXCLUDED.compositions_exported_count,
			last_run_started_at            = EXCLUDED.last_run_started_at,
			last_run_completed_at          = EXCLUDED.last_run_completed_at,
			last_error                     = EXCLUDED.last_error,
			updated_at                     = now()`,
		w.ID, w.TemplateID.String(), w.SubjectID.String(), string(w.Status),
		w.LastExportedAt, nullableString(w.LastExportedCompositionUID), w.CompositionsExportedCount,
		w.LastRunStartedAt, w.LastRunCompletedAt, nullableString(w.LastError),
	)
	if err != nil {
		return atlaserrors.Wrap(atlaserrors.TargetInsertFailed, err, "saving watermark %s", w.ID)
	}
	return nil
}
