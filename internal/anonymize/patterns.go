package anonymize

import (
	_ "embed"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"

	"github.com/atlas-health/atlas/internal/atlaserrors"
)

//go:embed patterns/pii_patterns.toml
var defaultPatternsTOML string

// CompiledPattern is a single detection rule: a compiled regular expression,
// the PII category it signals, and the confidence score attached to a match.
type CompiledPattern struct {
	Regex      *regexp.Regexp
	Category   Category
	Confidence float64
}

// patternDefinition is the TOML shape of one [patterns.<name>] table.
type patternDefinition struct {
	Patterns   []string `toml:"patterns"`
	Confidence float64  `toml:"confidence"`
	Category   string   `toml:"category"`
}

type patternLibrary struct {
	Patterns map[string]patternDefinition `toml:"patterns"`
}

// PatternRegistry holds every compiled detection pattern, indexed both as a
// flat list and by category for targeted lookups.
type PatternRegistry struct {
	all        []CompiledPattern
	byCategory map[Category][]CompiledPattern
}

// DefaultPatternRegistry compiles the built-in pattern library embedded at
// build time.
func DefaultPatternRegistry() (*PatternRegistry, error) {
	return newPatternRegistryFromTOML(defaultPatternsTOML)
}

// LoadPatternRegistry compiles a custom pattern library TOML file.
func LoadPatternRegistry(path string) (*PatternRegistry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Configuration, err, "reading pattern library %s", path)
	}
	return newPatternRegistryFromTOML(string(content))
}

func newPatternRegistryFromTOML(content string) (*PatternRegistry, error) {
	var lib patternLibrary
	if err := toml.Unmarshal([]byte(content), &lib); err != nil {
		return nil, atlaserrors.Wrap(atlaserrors.Configuration, err, "parsing pattern library TOML")
	}

	reg := &PatternRegistry{byCategory: make(map[Category][]CompiledPattern)}
	for name, def := range lib.Patterns {
		category, err := ParseCategory(def.Category)
		if err != nil {
			return nil, atlaserrors.Wrap(atlaserrors.Configuration, err, "invalid category in pattern %q", name)
		}

		for _, raw := range def.Patterns {
			re, err := regexp.Compile(raw)
			if err != nil {
				return nil, atlaserrors.Wrap(atlaserrors.Configuration, err, "invalid regex in pattern %q: %s", name, raw)
			}
			compiled := CompiledPattern{Regex: re, Category: category, Confidence: def.Confidence}
			reg.all = append(reg.all, compiled)
			reg.byCategory[category] = append(reg.byCategory[category], compiled)
		}
	}

	return reg, nil
}

// All returns every compiled pattern.
func (r *PatternRegistry) All() []CompiledPattern {
	return r.all
}

// ForCategory returns the compiled patterns registered for a category.
func (r *PatternRegistry) ForCategory(c Category) []CompiledPattern {
	return r.byCategory[c]
}
