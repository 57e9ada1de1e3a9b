// Package export implements the Export Coordinator (C8): the top-level
// orchestration loop that drives every other subsystem, owns the shutdown
// watcher, and produces the run's ExportSummary.
package export

import (
	"sync"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
)

// ExportError is one non-fatal failure folded into the run summary. The
// summary, not the logs, is the source of truth a caller inspects (§7).
type ExportError struct {
	Kind    atlaserrors.Kind
	Message string
	Context string
}

// VerificationFailure describes one composition that failed the optional
// post-export verification pass (§4.8).
type VerificationFailure struct {
	CompositionUID   string
	SubjectID        string
	TemplateID       string
	ExpectedChecksum string
	ActualChecksum   string
	Reason           string
}

// VerificationReport is the outcome of the optional post-export existence
// and checksum check against the target store.
type VerificationReport struct {
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
	Failures []VerificationFailure
}

// Summary is the single source of truth for a run: every caller-visible
// outcome (exit code, notification, log echo) is derived from it. It is a
// plain value; concurrent accumulation during a run goes through
// summaryCollector.
type Summary struct {
	SubjectsProcessed int
	CompositionsTotal int
	Successful        int
	Failed            int
	DuplicatesSkipped int
	Duration          time.Duration
	Interrupted       bool
	ShutdownReason    string
	Errors            []ExportError
	Verification      *VerificationReport
}

// summaryCollector accumulates a Summary across subject workers. All
// mutation funnels through its mutex so parallel_subjects fan-out never
// races on the shared totals; the finished Summary is copied out once via
// snapshot.
type summaryCollector struct {
	mu sync.Mutex
	s  Summary
}

// absorb folds one batch's outcome into the running totals.
func (c *summaryCollector) absorb(successful, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.CompositionsTotal += successful + failed
	c.s.Successful += successful
	c.s.Failed += failed
}

func (c *summaryCollector) recordSubjectProcessed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.SubjectsProcessed++
}

func (c *summaryCollector) recordDuplicateSkipped(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.DuplicatesSkipped += n
}

// recordError appends an ExportError, classifying err through the closed
// atlaserrors taxonomy when possible.
func (c *summaryCollector) recordError(err error, context string) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Errors = append(c.s.Errors, ExportError{
		Kind:    atlaserrors.KindOf(err),
		Message: err.Error(),
		Context: context,
	})
}

func (c *summaryCollector) markInterrupted(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Interrupted = true
	c.s.ShutdownReason = reason
}

func (c *summaryCollector) snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// ExitCode maps the summary to the process exit code surface §6 assigns to
// the CLI collaborator: 0 success, 1 partial success, 130 interrupted. A
// fatal init-time error (configuration, connection/auth, runtime) is not
// representable from the summary alone — the caller returns those directly
// from Run and exits 2/4/5 before a Summary is even produced.
func (s *Summary) ExitCode() int {
	if s.Interrupted {
		return 130
	}
	if s.Failed > 0 || len(s.Errors) > 0 {
		return 1
	}
	return 0
}
