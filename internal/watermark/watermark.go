// Package watermark implements the resumable per (template, subject)
// incremental-sync checkpoint the Export Coordinator advances after every
// batch (§3, §4.4).
package watermark

import (
	"time"

	"github.com/atlas-health/atlas/internal/ids"
)

// ExportStatus is the watermark state machine: NotStarted -> InProgress ->
// {Completed, Interrupted, Failed}, with Interrupted and Failed both
// resumable back to InProgress on the next run.
type ExportStatus string

const (
	NotStarted  ExportStatus = "not_started"
	InProgress  ExportStatus = "in_progress"
	Completed   ExportStatus = "completed"
	Interrupted ExportStatus = "interrupted"
	Failed      ExportStatus = "failed"
)

// Watermark tracks export progress for one (template_id, subject_id) pair.
type Watermark struct {
	ID                         string
	TemplateID                 ids.TemplateId
	SubjectID                  ids.SubjectId
	Status                     ExportStatus
	LastExportedAt             *time.Time
	LastExportedCompositionUID string
	CompositionsExportedCount  int64
	LastRunStartedAt           *time.Time
	LastRunCompletedAt         *time.Time
	LastError                  string
	UpdatedAt                  time.Time
}

// ID returns the watermark identifier for a (template, subject) pair, per
// the §3 wire format.
func ID(templateID ids.TemplateId, subjectID ids.SubjectId) string {
	return templateID.String() + "::" + subjectID.String()
}

// New creates a fresh, not-yet-started watermark.
func New(templateID ids.TemplateId, subjectID ids.SubjectId) Watermark {
	return Watermark{
		ID:         ID(templateID, subjectID),
		TemplateID: templateID,
		SubjectID:  subjectID,
		Status:     NotStarted,
	}
}

// MarkStarted transitions the watermark into InProgress at the start of a run.
func (w *Watermark) MarkStarted(now time.Time) {
	w.Status = InProgress
	w.LastRunStartedAt = &now
	w.LastRunCompletedAt = nil
	w.LastError = ""
	w.UpdatedAt = now
}

// MarkCompleted transitions the watermark into Completed.
func (w *Watermark) MarkCompleted(now time.Time) {
	w.Status = Completed
	w.LastRunCompletedAt = &now
	w.UpdatedAt = now
}

// MarkFailed transitions the watermark into Failed, recording the error.
func (w *Watermark) MarkFailed(now time.Time, cause error) {
	w.Status = Failed
	if cause != nil {
		w.LastError = cause.Error()
	}
	w.LastRunCompletedAt = &now
	w.UpdatedAt = now
}

// MarkInterrupted transitions the watermark into Interrupted, used when a
// shutdown signal cuts a run short mid-subject.
func (w *Watermark) MarkInterrupted(now time.Time) {
	w.Status = Interrupted
	w.LastRunCompletedAt = &now
	w.UpdatedAt = now
}

// AdvanceAfterBatch moves the high watermark forward to the batch's tail
// timestamp and increments the exported count by the batch's successful
// count. This runs even when the batch had partial failures, so a retried
// run never reprocesses compositions already committed (§4.4, §4.7).
func (w *Watermark) AdvanceAfterBatch(tail time.Time, tailCompositionUID string, successful int, now time.Time) {
	if w.LastExportedAt == nil || tail.After(*w.LastExportedAt) {
		w.LastExportedAt = &tail
		w.LastExportedCompositionUID = tailCompositionUID
	}
	w.CompositionsExportedCount += int64(successful)
	w.UpdatedAt = now
}

// Resumable reports whether this watermark's state allows a new run to pick
// up where the last one left off rather than starting over.
func (w Watermark) Resumable() bool {
	switch w.Status {
	case InProgress, Interrupted, Failed, NotStarted:
		return true
	default:
		return false
	}
}
