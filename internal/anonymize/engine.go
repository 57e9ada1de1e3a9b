package anonymize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/config"
	"github.com/atlas-health/atlas/internal/obsmetrics"
)

// Result is the outcome of anonymizing a single document.
type Result struct {
	CompositionID  string
	Data           json.RawMessage
	Detections     []Entity
	StrategyLabel  string
	ProcessingTime time.Duration
}

// Engine detects and anonymizes PII in exported compositions according to
// a configured compliance mode and replacement strategy. In dry-run mode
// it detects but never rewrites data or writes to the audit log.
type Engine struct {
	enabled       bool
	dryRun        bool
	strategyLabel string
	strategy      Strategy

	detector Detector
	audit    *AuditLogger
}

// NewEngine builds an Engine from the process configuration.
func NewEngine(cfg config.AnonymizationConfig) (*Engine, error) {
	mode, err := ParseComplianceMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	var detector Detector
	if cfg.PatternLibrary != "" {
		registry, err := LoadPatternRegistry(cfg.PatternLibrary)
		if err != nil {
			return nil, err
		}
		detector = NewRegexDetectorWithRegistry(registry, mode, cfg.Threshold)
	} else {
		detector, err = NewRegexDetector(mode, cfg.Threshold)
		if err != nil {
			return nil, err
		}
	}

	audit, err := NewAuditLogger(cfg.AuditLogPath, cfg.AuditEnabled)
	if err != nil {
		return nil, err
	}

	label := strings.ToLower(strings.TrimSpace(cfg.Strategy))
	var strategy Strategy
	switch label {
	case "token":
		strategy = NewTokenStrategy()
	case "redact", "generalize":
		// Phase I ships only redact and token; generalize falls back to
		// redaction until a real generalization strategy is built.
		strategy = NewRedactStrategy()
	default:
		return nil, atlaserrors.New(atlaserrors.Configuration, "unknown anonymization strategy %q", cfg.Strategy)
	}

	return &Engine{
		enabled:       cfg.Enabled,
		dryRun:        cfg.DryRun,
		strategyLabel: label,
		strategy:      strategy,
		detector:      detector,
		audit:         audit,
	}, nil
}

func (e *Engine) Enabled() bool { return e.enabled }
func (e *Engine) DryRun() bool  { return e.dryRun }

// Anonymize detects PII in compositionID's data and, unless running in
// dry-run mode, rewrites every detected field through the configured
// strategy and appends an audit entry.
func (e *Engine) Anonymize(compositionID string, data json.RawMessage) (Result, error) {
	start := time.Now()

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Result{}, atlaserrors.Wrap(atlaserrors.Anonymisation, err, "decoding composition %s for PII detection", compositionID)
	}

	entities := e.detector.Detect(decoded, "")
	for _, entity := range entities {
		obsmetrics.PiiDetectionsTotal.WithLabelValues(string(entity.Category)).Inc()
	}

	if e.dryRun {
		return Result{
			CompositionID:  compositionID,
			Data:           data,
			Detections:     entities,
			StrategyLabel:  e.strategyLabel + "_dry_run",
			ProcessingTime: time.Since(start),
		}, nil
	}

	for i := range entities {
		anonymized, err := e.strategy.Anonymize(entities[i])
		if err != nil {
			return Result{}, atlaserrors.Wrap(atlaserrors.Anonymisation, err, "anonymizing field %s in composition %s", entities[i].FieldPath, compositionID)
		}
		entities[i].AnonymizedValue = anonymized
		replaceAtPath(decoded, strings.Split(entities[i].FieldPath, "."), anonymized)
	}

	anonymized, err := json.Marshal(decoded)
	if err != nil {
		return Result{}, atlaserrors.Wrap(atlaserrors.Anonymisation, err, "re-encoding anonymized composition %s", compositionID)
	}

	processingTime := time.Since(start)
	if err := e.audit.LogAnonymization(compositionID, e.strategyLabel, entities, processingTime); err != nil {
		return Result{}, err
	}

	return Result{
		CompositionID:  compositionID,
		Data:           anonymized,
		Detections:     entities,
		StrategyLabel:  e.strategyLabel,
		ProcessingTime: processingTime,
	}, nil
}

// replaceAtPath navigates to a dotted object path and overwrites the leaf
// string value. Array segments ("field[0]") are left untouched: the
// detector reports them for audit purposes, but in-place replacement is
// only supported for plain object fields.
func replaceAtPath(value any, path []string, replacement string) {
	if len(path) == 0 {
		return
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return
	}

	key := path[0]
	if idx := strings.IndexByte(key, '['); idx >= 0 {
		key = key[:idx]
	}

	if len(path) == 1 {
		if _, exists := obj[key]; exists {
			obj[key] = replacement
		}
		return
	}

	if next, exists := obj[key]; exists {
		replaceAtPath(next, path[1:], replacement)
	}
}

// CompositionID extracts the "uid" field of a decoded document, matching
// the identifier the rest of the pipeline already uses, for audit
// correlation. It never fails: documents without a uid audit under
// "unknown".
func CompositionID(data json.RawMessage) string {
	var probe struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.UID == "" {
		return "unknown"
	}
	return probe.UID
}
