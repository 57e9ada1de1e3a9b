// Package targetstore defines the Target Store contract (C3): bulk upsert
// of transformed compositions into a relational or document backend, with a
// dry-run mode that reports success without writing.
package targetstore

import (
	"context"

	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/transform"
)

// BulkResult aggregates the outcome of persisting one batch of records.
type BulkResult struct {
	Successful int
	Failed     int
	Errors     []error
}

// Store is implemented by both the Postgres and Cosmos backends.
type Store interface {
	// EnsureContainer prepares whatever backend-specific container a
	// template needs before the first write (a no-op for Postgres).
	EnsureContainer(ctx context.Context, templateID ids.TemplateId) error

	// BulkUpsert persists records idempotently (insert-or-update keyed by
	// composition id). When dryRun is true, no writes occur and every
	// record is reported successful.
	BulkUpsert(ctx context.Context, templateID ids.TemplateId, records []transform.Record, dryRun bool) (BulkResult, error)

	// VerifyExists reports whether a composition was persisted and, if the
	// backend stored one, its checksum. subjectID is required so document
	// backends partitioned by subject can do a point lookup rather than a
	// cross-partition scan.
	VerifyExists(ctx context.Context, templateID ids.TemplateId, subjectID ids.SubjectId, compositionUID string) (exists bool, checksum string, err error)

	Close(ctx context.Context) error
}
