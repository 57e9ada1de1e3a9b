package sourceclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/ids"
)

// aqlRequest is the POST body for /rest/openehr/v1/query/aql.
type aqlRequest struct {
	Q string `json:"q"`
}

// aqlResponse is the shape of a successful AQL query response.
type aqlResponse struct {
	Rows [][]json.RawMessage `json:"rows"`
}

// enumerationQuery lists every subject (EHR) known to the server.
const enumerationQuery = `SELECT e/ehr_id/value FROM EHR e`

// escapeAQLLiteral escapes single quotes in a value that will be embedded
// literally into an AQL string literal. The reference implementation only
// escaped this in one of its two call sites (REDESIGN FLAG #4); this
// implementation always escapes.
func escapeAQLLiteral(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// listingQuery builds the AQL query to list compositions for a (template,
// subject) pair, optionally filtered to `>= since`.
func listingQuery(subject ids.SubjectId, template ids.TemplateId, since *time.Time) string {
	var b strings.Builder
	b.WriteString("SELECT c/uid/value, c/archetype_details/template_id/value, ")
	b.WriteString("c/context/start_time/value, c/name/value\n")
	fmt.Fprintf(&b, "FROM EHR e[ehr_id/value='%s']\n", escapeAQLLiteral(subject.String()))
	b.WriteString("CONTAINS COMPOSITION c\n")
	fmt.Fprintf(&b, "WHERE c/archetype_details/template_id/value = '%s'\n", escapeAQLLiteral(template.String()))
	if since != nil {
		fmt.Fprintf(&b, "  AND c/context/start_time/value >= '%s'\n", since.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// parseListingRows parses AQL listing rows into CompositionMetadata,
// skipping (logging, never failing) rows with fewer than 3 cells or an
// unparseable UID or timestamp.
func parseListingRows(rows [][]json.RawMessage, subject ids.SubjectId, template ids.TemplateId, logger *slog.Logger) []composition.Metadata {
	out := make([]composition.Metadata, 0, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			logger.Warn("skipping AQL row with too few cells", "row_index", i, "cell_count", len(row))
			continue
		}

		uidStr, err := rawString(row[0])
		if err != nil {
			logger.Warn("skipping AQL row with unparseable uid", "row_index", i, "error", err)
			continue
		}
		uid, err := ids.NewCompositionUid(uidStr)
		if err != nil {
			logger.Warn("skipping AQL row with invalid composition uid", "row_index", i, "uid", uidStr, "error", err)
			continue
		}

		timeStr, err := rawString(row[2])
		if err != nil {
			logger.Warn("skipping AQL row with unparseable start_time", "row_index", i, "error", err)
			continue
		}
		committed, err := time.Parse(time.RFC3339, timeStr)
		if err != nil {
			logger.Warn("skipping AQL row with invalid start_time", "row_index", i, "start_time", timeStr, "error", err)
			continue
		}

		out = append(out, composition.Metadata{
			UID:           uid,
			SubjectID:     subject,
			TemplateID:    template,
			TimeCommitted: committed,
		})
	}
	return out
}

func rawString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", atlaserrors.Wrap(atlaserrors.SourceInvalidResponse, err, "expected string cell")
	}
	return s, nil
}
