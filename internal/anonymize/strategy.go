package anonymize

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
)

// Strategy replaces a detected PII entity with a non-identifying value.
type Strategy interface {
	Anonymize(e Entity) (string, error)
}

// RedactStrategy replaces PII with a "[CATEGORY]" marker, discarding the
// original value entirely.
type RedactStrategy struct{}

func NewRedactStrategy() *RedactStrategy { return &RedactStrategy{} }

func (s *RedactStrategy) Anonymize(e Entity) (string, error) {
	return fmt.Sprintf("[%s]", e.Category.Label()), nil
}

// TokenStrategy replaces PII with a unique token of the form
// "CATEGORY_NNN_RRRR": a per-category sequence counter that is monotonic
// across the whole run, plus a random suffix, so repeated values remain
// distinguishable within a run without being reversible to the original.
// Safe for concurrent use by parallel subject workers.
type TokenStrategy struct {
	mu       sync.Mutex
	counters map[Category]int
}

func NewTokenStrategy() *TokenStrategy {
	return &TokenStrategy{counters: make(map[Category]int)}
}

func (s *TokenStrategy) Anonymize(e Entity) (string, error) {
	s.mu.Lock()
	s.counters[e.Category]++
	counter := s.counters[e.Category]
	s.mu.Unlock()

	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%03d_%d", e.Category.Label(), counter, suffix), nil
}

// randomSuffix draws a value in [1000, 9999] so tokens for the same value
// are not deterministic across runs.
func randomSuffix() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return 0, err
	}
	return n.Int64() + 1000, nil
}
