package sourceclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/ids"
)

// enumerateSubjectIDs lists every subject known to the server. Rows that
// don't parse as a subject id are logged and skipped, never fatal.
func enumerateSubjectIDs(ctx context.Context, hc *http.Client, baseURL string, setAuth authSetter, policy RetryPolicy, logger *slog.Logger) ([]ids.SubjectId, error) {
	resp, err := runAQL(ctx, hc, baseURL, enumerationQuery, setAuth, policy)
	if err != nil {
		return nil, err
	}

	out := make([]ids.SubjectId, 0, len(resp.Rows))
	for i, row := range resp.Rows {
		if len(row) < 1 {
			logger.Warn("skipping subject enumeration row with no cells", "row_index", i)
			continue
		}
		raw, err := rawString(row[0])
		if err != nil {
			logger.Warn("skipping subject enumeration row with unparseable id", "row_index", i, "error", err)
			continue
		}
		subject, err := ids.NewSubjectId(raw)
		if err != nil {
			logger.Warn("skipping subject enumeration row with invalid id", "row_index", i, "value", raw, "error", err)
			continue
		}
		out = append(out, subject)
	}
	return out, nil
}

// listCompositions lists composition metadata for a (template, subject)
// pair, optionally filtered to compositions committed at or after `since`.
func listCompositions(ctx context.Context, hc *http.Client, baseURL string, subject ids.SubjectId, template ids.TemplateId, since *time.Time, setAuth authSetter, policy RetryPolicy, logger *slog.Logger) ([]composition.Metadata, error) {
	query := listingQuery(subject, template, since)
	resp, err := runAQL(ctx, hc, baseURL, query, setAuth, policy)
	if err != nil {
		return nil, err
	}
	return parseListingRows(resp.Rows, subject, template, logger), nil
}

// buildComposition assembles a Composition from already-known metadata and
// a raw FLAT content body.
func buildComposition(meta composition.Metadata, content []byte) (composition.Composition, error) {
	built, err := composition.NewBuilder().
		UID(meta.UID).
		SubjectID(meta.SubjectID).
		TemplateID(meta.TemplateID).
		TimeCommitted(meta.TimeCommitted).
		Content(content).
		Build()
	if err != nil {
		return composition.Composition{}, atlaserrors.Wrap(atlaserrors.Other, err, "assembling composition")
	}
	return built, nil
}
