package export

import "sync/atomic"

// Shutdown is the one-writer/many-reader latest-value broadcast the
// coordinator re-reads at three checkpoints per inner iteration: before
// each template, before each subject, and before each batch (§4.8, §5).
// Readers poll rather than block on a channel, matching the design note
// that checkpoints, not wake-ups, drive cancellation here.
type Shutdown struct {
	triggered atomic.Bool
}

// NewShutdown returns a Shutdown signal in the not-triggered state.
func NewShutdown() *Shutdown {
	return &Shutdown{}
}

// Trigger is the single writer's call, invoked from a process-level signal
// handler or test harness. Idempotent.
func (s *Shutdown) Trigger() {
	s.triggered.Store(true)
}

// Triggered reports the latest observed value. Safe for concurrent readers.
func (s *Shutdown) Triggered() bool {
	if s == nil {
		return false
	}
	return s.triggered.Load()
}
