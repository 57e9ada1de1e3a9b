// Package postgres implements the relational Target Store backend (§4.6
// Backend R): pgx-backed upserts into a compositions table, with a
// failed_exports retry queue for per-document failures that a batch's
// overall success should not hide.
package postgres

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/obsmetrics"
	"github.com/atlas-health/atlas/internal/targetstore"
	"github.com/atlas-health/atlas/internal/transform"
)

// Store is the pgx-backed relational Target Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and verifies the connection is live. The
// configured statement timeout is applied per connection via the
// statement_timeout runtime parameter.
func NewStore(ctx context.Context, dbURL, sslMode string, statementTimeoutMs int64) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(connString(dbURL, sslMode))
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Configuration, err, "parsing postgres URL")
	}
	if statementTimeoutMs > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(statementTimeoutMs, 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.TargetConnection, err, "connecting to postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, atlaserrors.Wrap(atlaserrors.TargetConnection, err, "pinging postgres")
	}
	return &Store{pool: pool}, nil
}

// connString applies the configured sslmode to dbURL unless the URL already
// carries one; an explicit URL parameter always wins.
func connString(dbURL, sslMode string) string {
	if sslMode == "" {
		return dbURL
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		return dbURL
	}
	q := u.Query()
	if q.Get("sslmode") != "" {
		return dbURL
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

// EnsureContainer is a no-op for the relational backend: the schema is
// fixed by migrations rather than created per template.
func (s *Store) EnsureContainer(_ context.Context, _ ids.TemplateId) error {
	return nil
}

// BulkUpsert upserts each record by composition id. A per-record failure is
// recorded to failed_exports and does not abort the rest of the batch.
func (s *Store) BulkUpsert(ctx context.Context, templateID ids.TemplateId, records []transform.Record, dryRun bool) (targetstore.BulkResult, error) {
	if dryRun {
		return targetstore.BulkResult{Successful: len(records)}, nil
	}

	var result targetstore.BulkResult
	for _, rec := range records {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO compositions (id, subject_id, template_id, composition_uid, time_committed, checksum, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (id) DO UPDATE SET
				subject_id      = EXCLUDED.subject_id,
				template_id     = EXCLUDED.template_id,
				composition_uid = EXCLUDED.composition_uid,
				time_committed  = EXCLUDED.time_committed,
				checksum        = EXCLUDED.checksum,
				data            = EXCLUDED.data,
				updated_at      = now()`,
			rec.ID, rec.SubjectID, rec.TemplateID, rec.CompositionUID, rec.TimeCommitted, nullableString(rec.Checksum), rec.Data,
		)
		if err != nil {
			result.Failed++
			wrapped := atlaserrors.Wrap(atlaserrors.TargetInsertFailed, err, "upserting composition %s", rec.ID)
			result.Errors = append(result.Errors, wrapped)
			s.recordFailure(ctx, templateID, rec, wrapped)
			continue
		}
		result.Successful++
		obsmetrics.CompositionsExportedTotal.WithLabelValues(templateID.String()).Inc()
	}

	if result.Failed > 0 {
		obsmetrics.CompositionsFailedTotal.WithLabelValues(templateID.String()).Add(float64(result.Failed))
	}
	return result, nil
}

// recordFailure upserts a failed_exports row for later retry. Failures
// writing this bookkeeping row are swallowed: the caller already has the
// original error to report.
func (s *Store) recordFailure(ctx context.Context, templateID ids.TemplateId, rec transform.Record, cause error) {
	_, _ = s.pool.Exec(ctx, `
		INSERT INTO failed_exports (template_id, subject_id, composition_uid, error_message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (template_id, subject_id, composition_uid) WHERE NOT resolved
		DO UPDATE SET attempts = failed_exports.attempts + 1, last_failed_at = now(), error_message = EXCLUDED.error_message`,
		templateID.String(), rec.SubjectID, rec.CompositionUID, cause.Error(),
	)
}

// VerifyExists reports whether a composition row exists and, if present,
// its stored checksum.
func (s *Store) VerifyExists(ctx context.Context, templateID ids.TemplateId, subjectID ids.SubjectId, compositionUID string) (bool, string, error) {
	var checksum *string
	err := s.pool.QueryRow(ctx,
		`SELECT checksum FROM compositions WHERE composition_uid = $1 AND template_id = $2 AND subject_id = $3`,
		compositionUID, templateID.String(), subjectID.String(),
	).Scan(&checksum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, "", nil
		}
		return false, "", atlaserrors.Wrap(atlaserrors.TargetQueryFailed, err, "verifying composition %s", compositionUID)
	}
	if checksum == nil {
		return true, "", nil
	}
	return true, *checksum, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
