// Package diag implements the fault handler's supplemented diagnostic hook
// (§4.2, "Supplemented diagnostic hook (no semantic effect)"): a counter of
// consecutive ENOMEM returns that, once a threshold is reached, emits one
// structured log line and optionally captures a heap profile for
// cmd/vmdiag to inspect post-mortem. None of this changes a fault's
// returned status.
package diag

import (
	"bytes"
	"log/slog"
	"runtime/pprof"
	"sync"
)

// ENOMEMTracker counts consecutive ENOMEM outcomes reported by one or more
// fault.Handler values and fires Capture once Threshold consecutive
// failures accumulate. It is safe for concurrent use by goroutines standing
// in for concurrent CPUs.
type ENOMEMTracker struct {
	// Logger receives the single structured line emitted when Threshold is
	// reached. A nil Logger falls back to slog.Default().
	Logger *slog.Logger

	// Threshold is the number of consecutive ENOMEMs that triggers a log
	// line and a capture. Zero disables the hook entirely: NoteENOMEM
	// still counts, but never fires.
	Threshold int

	// Capture is called the moment Threshold is reached, and a non-nil
	// result is kept as a snapshot. A nil Capture falls back to
	// DefaultHeapProfile. cmd/vmdiag consumes whatever bytes it returns via
	// github.com/google/pprof/profile.
	Capture func() []byte

	mu        sync.Mutex
	streak    int
	fired     bool
	snapshots [][]byte
}

// NoteSuccess resets the consecutive-failure streak, per §4.2's "reset on
// the first subsequent success".
func (t *ENOMEMTracker) NoteSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streak = 0
	t.fired = false
}

// NoteENOMEM records one more consecutive ENOMEM. Once the streak reaches
// Threshold it logs and captures exactly once per streak — repeated
// ENOMEMs past the threshold do not re-fire until a success resets it.
func (t *ENOMEMTracker) NoteENOMEM() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.streak++
	if t.Threshold <= 0 || t.streak < t.Threshold || t.fired {
		return
	}
	t.fired = true

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("consecutive allocation failures in fault handler",
		slog.Int("streak", t.streak),
		slog.Int("threshold", t.Threshold),
	)

	capture := t.Capture
	if capture == nil {
		capture = DefaultHeapProfile
	}
	if snap := capture(); snap != nil {
		t.snapshots = append(t.snapshots, snap)
	}
}

// Streak returns the current count of consecutive ENOMEMs, for tests.
func (t *ENOMEMTracker) Streak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streak
}

// Snapshots returns every profile captured so far, in capture order.
func (t *ENOMEMTracker) Snapshots() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

// DefaultHeapProfile captures the process's current heap profile in
// pprof's wire format, the same payload cmd/vmdiag parses with
// github.com/google/pprof/profile.
func DefaultHeapProfile() []byte {
	var buf bytes.Buffer
	if err := pprof.WriteHeapProfile(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}
