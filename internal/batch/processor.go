// Package batch implements the Batch Processor (C7): transforms a list of
// fetched compositions, optionally anonymises them, bulk-inserts the
// result, and checkpoints the watermark to the batch tail regardless of
// individual document failures.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlas-health/atlas/internal/anonymize"
	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/obsmetrics"
	"github.com/atlas-health/atlas/internal/targetstore"
	"github.com/atlas-health/atlas/internal/transform"
	"github.com/atlas-health/atlas/internal/watermark"
)

// Result is the per-batch outcome the coordinator folds into its summary.
type Result struct {
	Successful int
	Failed     int
	Errors     []error

	// TailChecksum is the checksum transform.Record produced for the batch's
	// last composition, when checksums are enabled and that composition
	// survived transform/anonymisation. Empty otherwise. The coordinator's
	// verification hook uses it as the expected value for a post-export
	// existence/checksum check.
	TailChecksum string
}

// Processor pipelines a batch of compositions through transform, optional
// anonymisation, and bulk insert, then advances the caller-owned watermark.
type Processor struct {
	transformer *transform.Transformer
	anonymizer  *anonymize.Engine // nil when anonymisation is disabled
	store       targetstore.Store
	watermarks  watermark.Store
	dryRun      bool
	logger      *slog.Logger
}

// New builds a Processor. anonymizer may be nil to disable anonymisation
// entirely (distinct from the engine's own dry-run mode).
func New(transformer *transform.Transformer, anonymizer *anonymize.Engine, store targetstore.Store, watermarks watermark.Store, dryRun bool, logger *slog.Logger) *Processor {
	return &Processor{
		transformer: transformer,
		anonymizer:  anonymizer,
		store:       store,
		watermarks:  watermarks,
		dryRun:      dryRun,
		logger:      logger,
	}
}

// ProcessBatch implements §4.7: if compositions is empty, returns a zero
// Result without touching the watermark. Otherwise every composition is
// transformed (and optionally anonymised, fail-safe: a document that
// cannot be anonymised is dropped rather than exported in the clear),
// bulk-inserted, and the watermark is advanced to the batch tail and
// checkpointed — even when some documents failed.
func (p *Processor) ProcessBatch(ctx context.Context, compositions []composition.Composition, templateID ids.TemplateId, subjectID ids.SubjectId, wm *watermark.Watermark) (Result, error) {
	if len(compositions) == 0 {
		return Result{}, nil
	}

	timer := prometheusTimer(templateID)
	defer timer()

	exportedAt := time.Now().UTC()
	records := make([]transform.Record, 0, len(compositions))
	var result Result

	for _, c := range compositions {
		rec, err := p.transformer.Transform(c, exportedAt)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, atlaserrors.Wrap(atlaserrors.Transformation, err, "transforming composition %s", c.UID.String()))
			p.logger.Warn("dropping composition: transform failed", "composition_uid", c.UID.String(), "error", err)
			continue
		}

		if p.anonymizer != nil && p.anonymizer.Enabled() {
			anonResult, err := p.anonymizer.Anonymize(rec.ID, rec.Data)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, atlaserrors.Wrap(atlaserrors.Anonymisation, err, "anonymizing composition %s", c.UID.String()))
				p.logger.Warn("dropping composition: anonymisation failed", "composition_uid", c.UID.String(), "error", err)
				continue
			}
			rec.Data = anonResult.Data
		}

		records = append(records, rec)
	}

	tailUID := compositions[len(compositions)-1].UID.String()
	for _, rec := range records {
		if rec.CompositionUID == tailUID {
			result.TailChecksum = rec.Checksum
			break
		}
	}

	bulkResult, err := p.store.BulkUpsert(ctx, templateID, records, p.dryRun)
	if err != nil {
		return result, err
	}

	result.Successful += bulkResult.Successful
	result.Failed += bulkResult.Failed
	result.Errors = append(result.Errors, bulkResult.Errors...)

	tail := compositions[len(compositions)-1]
	wm.AdvanceAfterBatch(tail.TimeCommitted, tail.UID.String(), bulkResult.Successful, time.Now().UTC())

	if !p.dryRun {
		if err := p.watermarks.Save(ctx, *wm); err != nil {
			p.logger.Warn("checkpoint failed: watermark save did not persist", "watermark_id", wm.ID, "error", err)
		}
	}

	return result, nil
}

func prometheusTimer(templateID ids.TemplateId) func() {
	start := time.Now()
	return func() {
		obsmetrics.BatchDuration.WithLabelValues(templateID.String()).Observe(time.Since(start).Seconds())
	}
}
