// Package anonymize implements PII/PHI detection and anonymisation for
// exported compositions: regex-driven detection over arbitrary JSON,
// redaction/tokenisation strategies, and an audit trail that never stores
// plaintext PII.
package anonymize

import (
	"encoding/json"
	"fmt"
)

// Entity is a single detected PII occurrence.
type Entity struct {
	Category        Category
	OriginalValue   string
	FieldPath       string
	Confidence      float64
	AnonymizedValue string
}

// Detector finds PII occurrences in a JSON document.
type Detector interface {
	Detect(value any, fieldPath string) []Entity
	ConfidenceThreshold() float64
}

// RegexDetector detects PII by matching a pattern registry against every
// string leaf reachable from a JSON value.
type RegexDetector struct {
	registry            *PatternRegistry
	confidenceThreshold float64
	mode                ComplianceMode
}

// NewRegexDetector builds a detector over the built-in pattern library.
func NewRegexDetector(mode ComplianceMode, confidenceThreshold float64) (*RegexDetector, error) {
	registry, err := DefaultPatternRegistry()
	if err != nil {
		return nil, err
	}
	return NewRegexDetectorWithRegistry(registry, mode, confidenceThreshold), nil
}

// NewRegexDetectorWithRegistry builds a detector over a caller-supplied
// pattern registry, e.g. one loaded from a custom TOML file.
func NewRegexDetectorWithRegistry(registry *PatternRegistry, mode ComplianceMode, confidenceThreshold float64) *RegexDetector {
	if confidenceThreshold < 0 {
		confidenceThreshold = 0
	}
	if confidenceThreshold > 1 {
		confidenceThreshold = 1
	}
	return &RegexDetector{registry: registry, confidenceThreshold: confidenceThreshold, mode: mode}
}

func (d *RegexDetector) ConfidenceThreshold() float64 { return d.confidenceThreshold }

// Detect recursively traverses a decoded JSON value, matching every pattern
// in scope for the detector's compliance mode against each string leaf.
// Object keys contribute a "path.key" segment, array indices a "path[idx]"
// segment; numbers, booleans and null never carry PII and are skipped.
func (d *RegexDetector) Detect(value any, fieldPath string) []Entity {
	var entities []Entity
	d.traverse(value, fieldPath, &entities)
	return entities
}

func (d *RegexDetector) traverse(value any, path string, out *[]Entity) {
	switch v := value.(type) {
	case string:
		*out = append(*out, d.detectInString(v, path)...)
	case map[string]any:
		for key, child := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			d.traverse(child, childPath, out)
		}
	case []any:
		for i, child := range v {
			d.traverse(child, fmt.Sprintf("%s[%d]", path, i), out)
		}
	default:
		// numbers, booleans, null: never treated as PII leaves.
	}
}

func (d *RegexDetector) detectInString(text, fieldPath string) []Entity {
	var entities []Entity
	for _, pattern := range d.registry.All() {
		if pattern.Confidence < d.confidenceThreshold {
			continue
		}
		if !d.mode.InScope(pattern.Category) {
			continue
		}
		for _, match := range pattern.Regex.FindAllString(text, -1) {
			entities = append(entities, Entity{
				Category:      pattern.Category,
				OriginalValue: match,
				FieldPath:     fieldPath,
				Confidence:    pattern.Confidence,
			})
		}
	}
	return entities
}

// DetectJSON decodes a raw JSON document and detects PII across it.
func (d *RegexDetector) DetectJSON(raw json.RawMessage) ([]Entity, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return d.Detect(value, ""), nil
}
