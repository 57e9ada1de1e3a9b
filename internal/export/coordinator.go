package export

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/batch"
	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/sourceclient"
	"github.com/atlas-health/atlas/internal/targetstore"
	"github.com/atlas-health/atlas/internal/watermark"
)

const subjectLockTTL = 15 * time.Minute

// Notifier receives the finished run summary. Implemented outside this
// package (e.g. by internal/notify's Slack sink) so the coordinator never
// depends on a concrete notification channel.
type Notifier interface {
	NotifySummary(ctx context.Context, summary Summary) error
}

// locker is implemented by watermark stores that support a distributed
// per-id lock (watermark.CachedStore, backed by Redis). A watermark.Store
// that does not implement it runs single-process and skips locking.
type locker interface {
	Lock(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, id string)
}

// Params bundles everything the coordinator needs to drive one run. It is
// built once in cmd/atlas/main.go from the loaded Config and the concrete
// subsystems that Config selects.
type Params struct {
	Source     sourceclient.Client
	Store      targetstore.Store
	Watermarks watermark.Store
	Processor  *batch.Processor

	TemplateIDs []ids.TemplateId
	// SubjectIDs is the explicit subject override from config; when empty
	// the coordinator enumerates subjects from the source on every run.
	SubjectIDs []ids.SubjectId

	Incremental      bool
	BatchSize        int
	ParallelSubjects int
	DryRun           bool
	VerifyEnabled    bool

	Notifier Notifier
	Logger   *slog.Logger
	Shutdown *Shutdown
}

// Coordinator owns the §4.8 top-level loop: template fan-out, subject
// fan-out (optionally bounded-parallel), batching within a subject, the
// shutdown watcher, and the final summary and verification hook.
type Coordinator struct {
	source     sourceclient.Client
	store      targetstore.Store
	watermarks watermark.Store
	processor  *batch.Processor

	templateIDs []ids.TemplateId
	subjectIDs  []ids.SubjectId

	incremental      bool
	batchSize        int
	parallelSubjects int
	dryRun           bool
	verifyEnabled    bool

	notifier Notifier
	logger   *slog.Logger
	shutdown *Shutdown

	touchedMu sync.Mutex
	touched   []touchedWatermark
}

type touchedWatermark struct {
	templateID   ids.TemplateId
	subjectID    ids.SubjectId
	watermark    watermark.Watermark
	tailChecksum string
}

// New builds a Coordinator from Params.
func New(p Params) *Coordinator {
	if p.Shutdown == nil {
		p.Shutdown = NewShutdown()
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 500
	}
	if p.ParallelSubjects <= 0 {
		p.ParallelSubjects = 1
	}
	return &Coordinator{
		source:           p.Source,
		store:            p.Store,
		watermarks:       p.Watermarks,
		processor:        p.Processor,
		templateIDs:      p.TemplateIDs,
		subjectIDs:       p.SubjectIDs,
		incremental:      p.Incremental,
		batchSize:        p.BatchSize,
		parallelSubjects: p.ParallelSubjects,
		dryRun:           p.DryRun,
		verifyEnabled:    p.VerifyEnabled,
		notifier:         p.Notifier,
		logger:           p.Logger,
		shutdown:         p.Shutdown,
	}
}

// Run executes one end-to-end export pass across every configured template
// and subject, returning the summary regardless of whether the run was
// clean, partially failed, or interrupted. A non-nil error return means the
// run could not even start (fatal to the run, §4.8/§7): configuration
// resolution or subject enumeration failed before any template was touched.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	collector := &summaryCollector{}

	subjectIDs, err := c.resolveSubjectIDs(ctx)
	if err != nil {
		return collector.snapshot(), err
	}

	for _, tmpl := range c.templateIDs {
		if c.shutdown.Triggered() {
			collector.markInterrupted("User signal")
			break
		}

		if err := c.store.EnsureContainer(ctx, tmpl); err != nil {
			collector.recordError(atlaserrors.Wrap(atlaserrors.TargetConnection, err, "ensuring container for template %s", tmpl.String()), tmpl.String())
			continue
		}

		if c.parallelSubjects <= 1 {
			c.runSubjectsSequential(ctx, tmpl, subjectIDs, collector)
		} else {
			c.runSubjectsParallel(ctx, tmpl, subjectIDs, collector)
		}
	}

	summary := collector.snapshot()

	if c.verifyEnabled {
		report := c.runVerification(ctx, c.snapshotTouched())
		summary.Verification = &report
	}

	summary.Duration = time.Since(start)

	if c.notifier != nil {
		if err := c.notifier.NotifySummary(ctx, summary); err != nil {
			c.logger.Warn("failed to post run summary notification", "error", err)
		}
	}

	return summary, nil
}

func (c *Coordinator) resolveSubjectIDs(ctx context.Context) ([]ids.SubjectId, error) {
	if len(c.subjectIDs) > 0 {
		return c.subjectIDs, nil
	}
	subjectIDs, err := c.source.EnumerateSubjectIDs(ctx)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.SourceConnection, err, "enumerating subjects")
	}
	return subjectIDs, nil
}

func (c *Coordinator) runSubjectsSequential(ctx context.Context, tmpl ids.TemplateId, subjectIDs []ids.SubjectId, summary *summaryCollector) {
	for _, subj := range subjectIDs {
		if c.shutdown.Triggered() {
			summary.markInterrupted("User signal")
			return
		}
		c.processSubject(ctx, tmpl, subj, summary)
	}
}

// runSubjectsParallel fans subjects for one template out across up to
// parallel_subjects concurrent workers. Each subject owns its own watermark
// instance (§5: no cross-task sharing), so the only shared state is the
// Summary, which serialises its own updates.
func (c *Coordinator) runSubjectsParallel(ctx context.Context, tmpl ids.TemplateId, subjectIDs []ids.SubjectId, summary *summaryCollector) {
	sem := make(chan struct{}, c.parallelSubjects)
	var wg sync.WaitGroup

	for _, subj := range subjectIDs {
		if c.shutdown.Triggered() {
			summary.markInterrupted("User signal")
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(subj ids.SubjectId) {
			defer wg.Done()
			defer func() { <-sem }()
			c.processSubject(ctx, tmpl, subj, summary)
		}(subj)
	}

	wg.Wait()
}

// processSubject implements the per-(template,subject) body of the §4.8
// loop: load-or-create the watermark, list and fetch compositions since the
// watermark (incremental mode), pipeline them through the batch processor
// in batch_size chunks, and checkpoint after every chunk.
func (c *Coordinator) processSubject(ctx context.Context, tmpl ids.TemplateId, subj ids.SubjectId, summary *summaryCollector) {
	id := watermark.ID(tmpl, subj)

	if lk, ok := c.watermarks.(locker); ok {
		acquired, err := lk.Lock(ctx, id, subjectLockTTL)
		if err != nil {
			c.logger.Warn("watermark lock attempt failed, proceeding without lock", "watermark_id", id, "error", err)
		} else if !acquired {
			c.logger.Info("skipping subject already locked by another worker", "watermark_id", id)
			return
		} else {
			defer lk.Unlock(ctx, id)
		}
	}

	wm, err := c.loadOrCreateWatermark(ctx, tmpl, subj)
	if err != nil {
		summary.recordError(err, id)
		return
	}

	now := time.Now().UTC()
	wm.MarkStarted(now)
	c.checkpointWatermark(ctx, wm)

	var since *time.Time
	if c.incremental && wm.LastExportedAt != nil {
		t := *wm.LastExportedAt
		since = &t
	}

	meta, err := c.source.ListCompositions(ctx, subj, tmpl, since)
	if err != nil {
		wrapped := atlaserrors.Wrap(atlaserrors.SourceQueryFailed, err, "listing compositions for template %s subject %s", tmpl.String(), subj.String())
		summary.recordError(wrapped, id)
		wm.MarkFailed(time.Now().UTC(), wrapped)
		c.checkpointWatermark(ctx, wm)
		c.recordTouched(tmpl, subj, wm, "")
		return
	}

	// The incremental filter is >=, so the listing re-receives the last
	// exported composition when nothing changed. Skipping it up front
	// avoids a pointless re-fetch and re-upsert of a document the target
	// already holds.
	if since != nil && wm.LastExportedCompositionUID != "" {
		kept := make([]composition.Metadata, 0, len(meta))
		for _, m := range meta {
			if m.UID.String() == wm.LastExportedCompositionUID && m.TimeCommitted.Equal(*since) {
				summary.recordDuplicateSkipped(1)
				continue
			}
			kept = append(kept, m)
		}
		meta = kept
	}

	compositions := make([]composition.Composition, 0, len(meta))
	for _, m := range meta {
		comp, err := c.source.FetchComposition(ctx, m)
		if err != nil {
			c.logger.Warn("dropping composition: fetch failed", "template_id", tmpl.String(), "subject_id", subj.String(), "composition_uid", m.UID.String(), "error", err)
			summary.recordError(atlaserrors.Wrap(atlaserrors.KindOf(err), err, "fetching composition %s", m.UID.String()), id)
			continue
		}
		compositions = append(compositions, comp)
	}

	if len(compositions) == 0 {
		wm.MarkCompleted(time.Now().UTC())
		c.checkpointWatermark(ctx, wm)
		summary.recordSubjectProcessed()
		c.recordTouched(tmpl, subj, wm, "")
		return
	}

	var tailChecksum string
	for _, chunk := range chunkCompositions(compositions, c.batchSize) {
		if c.shutdown.Triggered() {
			wm.MarkInterrupted(time.Now().UTC())
			c.checkpointWatermark(ctx, wm)
			summary.markInterrupted("User signal")
			c.recordTouched(tmpl, subj, wm, tailChecksum)
			return
		}

		result, err := c.processor.ProcessBatch(ctx, chunk, tmpl, subj, &wm)
		if err != nil {
			wrapped := atlaserrors.Wrap(atlaserrors.TargetInsertFailed, err, "processing batch for template %s subject %s", tmpl.String(), subj.String())
			summary.recordError(wrapped, id)
			wm.MarkFailed(time.Now().UTC(), wrapped)
			c.checkpointWatermark(ctx, wm)
			c.recordTouched(tmpl, subj, wm, tailChecksum)
			return
		}
		summary.absorb(result.Successful, result.Failed)
		for _, e := range result.Errors {
			summary.recordError(e, id)
		}
		if result.TailChecksum != "" {
			tailChecksum = result.TailChecksum
		}
	}

	wm.MarkCompleted(time.Now().UTC())
	c.checkpointWatermark(ctx, wm)
	summary.recordSubjectProcessed()
	c.recordTouched(tmpl, subj, wm, tailChecksum)
}

func (c *Coordinator) loadOrCreateWatermark(ctx context.Context, tmpl ids.TemplateId, subj ids.SubjectId) (watermark.Watermark, error) {
	existing, err := c.watermarks.Load(ctx, watermark.ID(tmpl, subj))
	if err != nil {
		return watermark.Watermark{}, atlaserrors.Wrap(atlaserrors.State, err, "loading watermark for template %s subject %s", tmpl.String(), subj.String())
	}
	if existing != nil {
		return *existing, nil
	}
	return watermark.New(tmpl, subj), nil
}

// checkpointWatermark persists wm unless dry_run is set, per the dry-run
// contract (§4.3): no write round-trip may mutate the target store. A
// persistence failure is logged and swallowed (§4.4) — the in-memory
// watermark still advances correctly for the rest of this run.
func (c *Coordinator) checkpointWatermark(ctx context.Context, wm watermark.Watermark) {
	if c.dryRun {
		return
	}
	if err := c.watermarks.Save(ctx, wm); err != nil {
		c.logger.Warn("checkpoint failed: watermark save did not persist", "watermark_id", wm.ID, "error", err)
	}
}

func (c *Coordinator) recordTouched(tmpl ids.TemplateId, subj ids.SubjectId, wm watermark.Watermark, tailChecksum string) {
	c.touchedMu.Lock()
	defer c.touchedMu.Unlock()
	c.touched = append(c.touched, touchedWatermark{templateID: tmpl, subjectID: subj, watermark: wm, tailChecksum: tailChecksum})
}

func (c *Coordinator) snapshotTouched() []touchedWatermark {
	c.touchedMu.Lock()
	defer c.touchedMu.Unlock()
	out := make([]touchedWatermark, len(c.touched))
	copy(out, c.touched)
	return out
}

// chunkCompositions slices compositions into batch_size-sized groups,
// preserving time-committed order (§5 ordering guarantee).
func chunkCompositions(compositions []composition.Composition, size int) [][]composition.Composition {
	if size <= 0 || size >= len(compositions) {
		return [][]composition.Composition{compositions}
	}
	var chunks [][]composition.Composition
	for start := 0; start < len(compositions); start += size {
		end := start + size
		if end > len(compositions) {
			end = len(compositions)
		}
		chunks = append(chunks, compositions[start:end])
	}
	return chunks
}
