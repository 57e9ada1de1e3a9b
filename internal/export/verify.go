package export

import (
	"context"
	"time"
)

// runVerification implements the optional §4.8 verification hook: for every
// (template,subject) touched during the run, confirm the last exported
// composition is actually present in the target store. A watermark that
// exported zero compositions this run has nothing new to verify and is
// counted as skipped rather than passed or failed.
func (c *Coordinator) runVerification(ctx context.Context, touched []touchedWatermark) VerificationReport {
	start := time.Now()
	report := VerificationReport{}

	for _, t := range touched {
		wm := t.watermark
		if wm.CompositionsExportedCount == 0 || wm.LastExportedCompositionUID == "" {
			report.Skipped++
			continue
		}

		exists, actualChecksum, err := c.store.VerifyExists(ctx, t.templateID, t.subjectID, wm.LastExportedCompositionUID)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, VerificationFailure{
				CompositionUID: wm.LastExportedCompositionUID,
				SubjectID:      t.subjectID.String(),
				TemplateID:     t.templateID.String(),
				Reason:         err.Error(),
			})
			continue
		}
		if !exists {
			report.Failed++
			report.Failures = append(report.Failures, VerificationFailure{
				CompositionUID: wm.LastExportedCompositionUID,
				SubjectID:      t.subjectID.String(),
				TemplateID:     t.templateID.String(),
				Reason:         "composition not found in target store",
			})
			continue
		}
		if t.tailChecksum == "" || actualChecksum == "" {
			// Checksums are opt-in (§4.5): without both an expected and an
			// actual value there is nothing to compare, so existence alone
			// counts as skipped rather than a blind pass.
			report.Skipped++
			continue
		}
		if t.tailChecksum != actualChecksum {
			report.Failed++
			report.Failures = append(report.Failures, VerificationFailure{
				CompositionUID:   wm.LastExportedCompositionUID,
				SubjectID:        t.subjectID.String(),
				TemplateID:       t.templateID.String(),
				ExpectedChecksum: t.tailChecksum,
				ActualChecksum:   actualChecksum,
				Reason:           "checksum mismatch",
			})
			continue
		}

		report.Passed++
	}

	report.Duration = time.Since(start)
	return report
}
