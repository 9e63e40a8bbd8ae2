// Package irq models splhigh/splx: the interrupt-priority bracket the
// original kernel requires around every TLB write and full-TLB
// invalidation, so a nested trap can never observe a partially written
// entry (§5 of the specification).
//
// Go has no interrupt priority levels to raise, but the bracket is kept as
// an explicit, testable call pair rather than inlined, so the fault
// handler and address-space code read the same way the teacher's
// splhigh()/splx(spl) pairs do, and tests can assert the bracket actually
// happened around every TLB mutation.
package irq

import "sync/atomic"

// Level is an opaque priority level returned by Raise and consumed by
// Restore, matching splhigh's "int prev" return value.
type Level int32

// Priority tracks the current simulated interrupt priority for one
// simulated CPU. The zero value is priority 0 ("interrupts enabled").
type Priority struct {
	current atomic.Int32
	raises  atomic.Int32 // count of Raise calls, for test assertions
}

const high Level = 1

// Raise raises the priority to its highest level and returns the previous
// level, matching splhigh().
func (p *Priority) Raise() Level {
	prev := Level(p.current.Swap(int32(high)))
	p.raises.Add(1)
	return prev
}

// Restore restores the priority to prev, matching splx(prev).
func (p *Priority) Restore(prev Level) {
	p.current.Store(int32(prev))
}

// Raised reports whether the priority is currently at its highest level —
// i.e. whether the caller is inside a Raise/Restore bracket.
func (p *Priority) Raised() bool {
	return p.current.Load() == int32(high)
}

// RaiseCount returns how many times Raise has been called, for tests that
// assert a TLB mutation always happens under a bracket.
func (p *Priority) RaiseCount() int {
	return int(p.raises.Load())
}
