package export

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/atlas-health/atlas/internal/batch"
	"github.com/atlas-health/atlas/internal/composition"
	"github.com/atlas-health/atlas/internal/config"
	"github.com/atlas-health/atlas/internal/ids"
	"github.com/atlas-health/atlas/internal/targetstore"
	"github.com/atlas-health/atlas/internal/transform"
	"github.com/atlas-health/atlas/internal/watermark"
)

// --- fakes ---

type fakeSource struct {
	metaByPair map[string][]composition.Metadata
	contents   map[string]json.RawMessage
	subjects   []ids.SubjectId
	fetchErr   map[string]error
}

func pairKey(template ids.TemplateId, subject ids.SubjectId) string {
	return template.String() + "::" + subject.String()
}

func (f *fakeSource) Authenticate(context.Context) error { return nil }

func (f *fakeSource) EnumerateSubjectIDs(context.Context) ([]ids.SubjectId, error) {
	return f.subjects, nil
}

func (f *fakeSource) ListCompositions(_ context.Context, subject ids.SubjectId, template ids.TemplateId, since *time.Time) ([]composition.Metadata, error) {
	all := f.metaByPair[pairKey(template, subject)]
	if since == nil {
		return all, nil
	}
	var out []composition.Metadata
	for _, m := range all {
		if !m.TimeCommitted.Before(*since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchComposition(_ context.Context, meta composition.Metadata) (composition.Composition, error) {
	if err, ok := f.fetchErr[meta.UID.String()]; ok {
		return composition.Composition{}, err
	}
	content := f.contents[meta.UID.String()]
	if content == nil {
		content = json.RawMessage(`{}`)
	}
	return composition.NewBuilder().
		UID(meta.UID).
		SubjectID(meta.SubjectID).
		TemplateID(meta.TemplateID).
		TimeCommitted(meta.TimeCommitted).
		Content(content).
		Build()
}

func (f *fakeSource) IsAuthenticated() bool { return true }
func (f *fakeSource) BaseURL() string       { return "https://source.example" }

type fakeTargetStore struct {
	upserts  [][]transform.Record
	failNext int
	exists   map[string]string
}

func (s *fakeTargetStore) EnsureContainer(context.Context, ids.TemplateId) error { return nil }

func (s *fakeTargetStore) BulkUpsert(_ context.Context, _ ids.TemplateId, records []transform.Record, dryRun bool) (targetstore.BulkResult, error) {
	s.upserts = append(s.upserts, records)
	if dryRun {
		return targetstore.BulkResult{Successful: len(records)}, nil
	}
	failed := s.failNext
	if failed > len(records) {
		failed = len(records)
	}
	s.failNext = 0
	result := targetstore.BulkResult{Successful: len(records) - failed, Failed: failed}
	for i := 0; i < failed; i++ {
		result.Errors = append(result.Errors, context.DeadlineExceeded)
	}
	return result, nil
}

func (s *fakeTargetStore) VerifyExists(_ context.Context, _ ids.TemplateId, _ ids.SubjectId, compositionUID string) (bool, string, error) {
	checksum, ok := s.exists[compositionUID]
	return ok, checksum, nil
}

func (s *fakeTargetStore) Close(context.Context) error { return nil }

type fakeWatermarkStore struct {
	data  map[string]watermark.Watermark
	saves int
}

func newFakeWatermarkStore() *fakeWatermarkStore {
	return &fakeWatermarkStore{data: map[string]watermark.Watermark{}}
}

func (s *fakeWatermarkStore) Load(_ context.Context, id string) (*watermark.Watermark, error) {
	w, ok := s.data[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *fakeWatermarkStore) Save(_ context.Context, w watermark.Watermark) error {
	s.saves++
	s.data[w.ID] = w
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustTemplateID(t *testing.T, v string) ids.TemplateId {
	t.Helper()
	id, err := ids.NewTemplateId(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id
}

func mustSubjectID(t *testing.T, v string) ids.SubjectId {
	t.Helper()
	id, err := ids.NewSubjectId(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id
}

func mustCompositionUID(t *testing.T, v string) ids.CompositionUid {
	t.Helper()
	id, err := ids.NewCompositionUid(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id
}

// --- tests ---

// S1: first-ever export of a template/subject with two compositions.
func TestCoordinatorFirstExportAdvancesWatermarkToTail(t *testing.T) {
	tmpl := mustTemplateID(t, "vitals.v1")
	subj := mustSubjectID(t, "ehr-1")

	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	source := &fakeSource{
		metaByPair: map[string][]composition.Metadata{
			pairKey(tmpl, subj): {
				{UID: mustCompositionUID(t, "u1::s::1"), SubjectID: subj, TemplateID: tmpl, TimeCommitted: t1},
				{UID: mustCompositionUID(t, "u2::s::1"), SubjectID: subj, TemplateID: tmpl, TimeCommitted: t2},
			},
		},
	}
	store := &fakeTargetStore{}
	wmStore := newFakeWatermarkStore()
	processor := batch.New(transform.New(config.FormatPreserve, false, "1", "incremental"), nil, store, wmStore, false, testLogger())

	c := New(Params{
		Source:      source,
		Store:       store,
		Watermarks:  wmStore,
		Processor:   processor,
		TemplateIDs: []ids.TemplateId{tmpl},
		SubjectIDs:  []ids.SubjectId{subj},
		Incremental: true,
		BatchSize:   500,
		Logger:      testLogger(),
	})

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.CompositionsTotal != 2 || summary.Successful != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	wm := wmStore.data[watermark.ID(tmpl, subj)]
	if wm.Status != watermark.Completed {
		t.Errorf("expected watermark Completed, got %s", wm.Status)
	}
	if wm.LastExportedAt == nil || !wm.LastExportedAt.Equal(t2) {
		t.Errorf("expected watermark advanced to %v, got %v", t2, wm.LastExportedAt)
	}
	if wm.LastExportedCompositionUID != "u2::s::1" {
		t.Errorf("expected last exported uid u2::s::1, got %s", wm.LastExportedCompositionUID)
	}
	if wm.CompositionsExportedCount != 2 {
		t.Errorf("expected count=2, got %d", wm.CompositionsExportedCount)
	}
}

// S2: incremental run with no new data leaves the watermark Completed
// without any new fetches or inserts.
func TestCoordinatorIncrementalNoNewDataStaysCompletedWithZeroFetches(t *testing.T) {
	tmpl := mustTemplateID(t, "vitals.v1")
	subj := mustSubjectID(t, "ehr-1")

	priorTS := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wmStore := newFakeWatermarkStore()
	existing := watermark.New(tmpl, subj)
	existing.LastExportedAt = &priorTS
	existing.CompositionsExportedCount = 5
	wmStore.data[existing.ID] = existing

	source := &fakeSource{metaByPair: map[string][]composition.Metadata{}}
	store := &fakeTargetStore{}
	processor := batch.New(transform.New(config.FormatPreserve, false, "1", "incremental"), nil, store, wmStore, false, testLogger())

	c := New(Params{
		Source:      source,
		Store:       store,
		Watermarks:  wmStore,
		Processor:   processor,
		TemplateIDs: []ids.TemplateId{tmpl},
		SubjectIDs:  []ids.SubjectId{subj},
		Incremental: true,
		BatchSize:   500,
		Logger:      testLogger(),
	})

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.CompositionsTotal != 0 {
		t.Errorf("expected zero compositions, got %d", summary.CompositionsTotal)
	}
	if len(store.upserts) != 0 {
		t.Errorf("expected zero bulk inserts, got %d", len(store.upserts))
	}

	wm := wmStore.data[existing.ID]
	if wm.Status != watermark.Completed {
		t.Errorf("expected watermark to remain Completed, got %s", wm.Status)
	}
	if wm.CompositionsExportedCount != 5 {
		t.Errorf("expected count to remain 5, got %d", wm.CompositionsExportedCount)
	}
}

// S4-equivalent: a shutdown signalled before the second template is
// processed interrupts the run and leaves later templates untouched.
func TestCoordinatorShutdownStopsBeforeNextTemplate(t *testing.T) {
	tmplA := mustTemplateID(t, "vitals.v1")
	tmplB := mustTemplateID(t, "labs.v1")
	subj := mustSubjectID(t, "ehr-1")

	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{
		metaByPair: map[string][]composition.Metadata{
			pairKey(tmplA, subj): {{UID: mustCompositionUID(t, "u1::s::1"), SubjectID: subj, TemplateID: tmplA, TimeCommitted: t1}},
			pairKey(tmplB, subj): {{UID: mustCompositionUID(t, "u2::s::1"), SubjectID: subj, TemplateID: tmplB, TimeCommitted: t1}},
		},
	}
	store := &fakeTargetStore{}
	wmStore := newFakeWatermarkStore()
	processor := batch.New(transform.New(config.FormatPreserve, false, "1", "incremental"), nil, store, wmStore, false, testLogger())

	shutdown := NewShutdown()
	c := New(Params{
		Source:      source,
		Store:       store,
		Watermarks:  wmStore,
		Processor:   processor,
		TemplateIDs: []ids.TemplateId{tmplA, tmplB},
		SubjectIDs:  []ids.SubjectId{subj},
		Incremental: true,
		BatchSize:   500,
		Logger:      testLogger(),
		Shutdown:    shutdown,
	})

	shutdown.Trigger() // signal before Run even starts the first template

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.Interrupted {
		t.Error("expected summary.Interrupted to be true")
	}
	if summary.ShutdownReason != "User signal" {
		t.Errorf("expected shutdown reason %q, got %q", "User signal", summary.ShutdownReason)
	}
	if summary.ExitCode() != 130 {
		t.Errorf("expected exit code 130, got %d", summary.ExitCode())
	}
	if len(store.upserts) != 0 {
		t.Errorf("expected no work to have started, got %d upserts", len(store.upserts))
	}
}

// Dry-run: the coordinator never checkpoints watermarks to the backing
// store even though batch processing still reports success (§4.3, S6).
func TestCoordinatorDryRunNeverPersistsWatermark(t *testing.T) {
	tmpl := mustTemplateID(t, "vitals.v1")
	subj := mustSubjectID(t, "ehr-1")
	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	source := &fakeSource{
		metaByPair: map[string][]composition.Metadata{
			pairKey(tmpl, subj): {{UID: mustCompositionUID(t, "u1::s::1"), SubjectID: subj, TemplateID: tmpl, TimeCommitted: t1}},
		},
	}
	store := &fakeTargetStore{}
	wmStore := newFakeWatermarkStore()
	processor := batch.New(transform.New(config.FormatPreserve, false, "1", "incremental"), nil, store, wmStore, true, testLogger())

	c := New(Params{
		Source:      source,
		Store:       store,
		Watermarks:  wmStore,
		Processor:   processor,
		TemplateIDs: []ids.TemplateId{tmpl},
		SubjectIDs:  []ids.SubjectId{subj},
		Incremental: true,
		BatchSize:   500,
		DryRun:      true,
		Logger:      testLogger(),
	})

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Successful != 1 {
		t.Errorf("expected dry run to report 1 successful, got %+v", summary)
	}
	if wmStore.saves != 0 {
		t.Errorf("expected zero watermark saves in dry-run mode, got %d", wmStore.saves)
	}
}

// Subjects whose compositions fail to fetch are dropped rather than
// failing the whole run, and the remaining compositions still export.
func TestCoordinatorSkipsCompositionsThatFailToFetch(t *testing.T) {
	tmpl := mustTemplateID(t, "vitals.v1")
	subj := mustSubjectID(t, "ehr-1")
	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	source := &fakeSource{
		metaByPair: map[string][]composition.Metadata{
			pairKey(tmpl, subj): {
				{UID: mustCompositionUID(t, "u1::s::1"), SubjectID: subj, TemplateID: tmpl, TimeCommitted: t1},
				{UID: mustCompositionUID(t, "u2::s::1"), SubjectID: subj, TemplateID: tmpl, TimeCommitted: t2},
			},
		},
		fetchErr: map[string]error{"u1::s::1": context.DeadlineExceeded},
	}
	store := &fakeTargetStore{}
	wmStore := newFakeWatermarkStore()
	processor := batch.New(transform.New(config.FormatPreserve, false, "1", "incremental"), nil, store, wmStore, false, testLogger())

	c := New(Params{
		Source:      source,
		Store:       store,
		Watermarks:  wmStore,
		Processor:   processor,
		TemplateIDs: []ids.TemplateId{tmpl},
		SubjectIDs:  []ids.SubjectId{subj},
		Incremental: true,
		BatchSize:   500,
		Logger:      testLogger(),
	})

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.CompositionsTotal != 1 || summary.Successful != 1 {
		t.Fatalf("expected the one fetchable composition to export, got %+v", summary)
	}
	if len(summary.Errors) == 0 {
		t.Error("expected the fetch failure to be recorded as an ExportError")
	}

	wm := wmStore.data[watermark.ID(tmpl, subj)]
	if wm.LastExportedCompositionUID != "u2::s::1" {
		t.Errorf("expected watermark to advance to the surviving composition, got %s", wm.LastExportedCompositionUID)
	}
}

// Verification pass compares each touched watermark's last exported
// composition against the target store.
func TestCoordinatorVerificationReportsPassAndFail(t *testing.T) {
	tmpl := mustTemplateID(t, "vitals.v1")
	subjOK := mustSubjectID(t, "ehr-ok")
	subjMissing := mustSubjectID(t, "ehr-missing")
	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	source := &fakeSource{
		metaByPair: map[string][]composition.Metadata{
			pairKey(tmpl, subjOK):      {{UID: mustCompositionUID(t, "u1::s::1"), SubjectID: subjOK, TemplateID: tmpl, TimeCommitted: t1}},
			pairKey(tmpl, subjMissing): {{UID: mustCompositionUID(t, "u2::s::1"), SubjectID: subjMissing, TemplateID: tmpl, TimeCommitted: t1}},
		},
	}
	store := &fakeTargetStore{exists: map[string]string{"u1::s::1": ""}}
	wmStore := newFakeWatermarkStore()
	processor := batch.New(transform.New(config.FormatPreserve, false, "1", "incremental"), nil, store, wmStore, false, testLogger())

	c := New(Params{
		Source:        source,
		Store:         store,
		Watermarks:    wmStore,
		Processor:     processor,
		TemplateIDs:   []ids.TemplateId{tmpl},
		SubjectIDs:    []ids.SubjectId{subjOK, subjMissing},
		Incremental:   true,
		BatchSize:     500,
		VerifyEnabled: true,
		Logger:        testLogger(),
	})

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Verification == nil {
		t.Fatal("expected a verification report")
	}
	// The present composition has no stored checksum, so it counts as
	// skipped rather than passed (existence-only, no checksum to compare).
	if summary.Verification.Skipped != 1 {
		t.Errorf("expected 1 skipped verification, got %+v", summary.Verification)
	}
	if summary.Verification.Failed != 1 {
		t.Errorf("expected 1 verification failure for the missing composition, got %+v", summary.Verification)
	}
}

// Property: re-running immediately after a successful export with unchanged
// source data exports nothing new and skips the >= boundary duplicate.
func TestCoordinatorRerunSkipsBoundaryDuplicate(t *testing.T) {
	tmpl := mustTemplateID(t, "vitals.v1")
	subj := mustSubjectID(t, "ehr-1")
	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	source := &fakeSource{
		metaByPair: map[string][]composition.Metadata{
			pairKey(tmpl, subj): {{UID: mustCompositionUID(t, "u1::s::1"), SubjectID: subj, TemplateID: tmpl, TimeCommitted: t1}},
		},
	}
	store := &fakeTargetStore{}
	wmStore := newFakeWatermarkStore()
	processor := batch.New(transform.New(config.FormatPreserve, false, "1", "incremental"), nil, store, wmStore, false, testLogger())

	params := Params{
		Source:      source,
		Store:       store,
		Watermarks:  wmStore,
		Processor:   processor,
		TemplateIDs: []ids.TemplateId{tmpl},
		SubjectIDs:  []ids.SubjectId{subj},
		Incremental: true,
		BatchSize:   500,
		Logger:      testLogger(),
	}

	if _, err := New(params).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstCount := wmStore.data[watermark.ID(tmpl, subj)].CompositionsExportedCount

	summary, err := New(params).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.CompositionsTotal != 0 {
		t.Errorf("expected zero new exports on the re-run, got %+v", summary)
	}
	if summary.DuplicatesSkipped != 1 {
		t.Errorf("expected the boundary composition to be counted as a skipped duplicate, got %d", summary.DuplicatesSkipped)
	}

	wm := wmStore.data[watermark.ID(tmpl, subj)]
	if wm.CompositionsExportedCount != firstCount {
		t.Errorf("re-run must not change the exported count: %d != %d", wm.CompositionsExportedCount, firstCount)
	}
	if wm.Status != watermark.Completed {
		t.Errorf("expected Completed after the re-run, got %s", wm.Status)
	}
}
