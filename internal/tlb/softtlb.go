package tlb

import (
	"sync"

	"github.com/raymond-cen/Virtual-Memory/internal/pagetable"
)

// Entry is one hardware TLB slot as observed by tests.
type Entry struct {
	Hi    Hi
	Lo    pagetable.Leaf
	Valid bool
}

// Soft is an in-process software simulation of the hardware TLB, used by
// address-space and fault-handler tests in place of real MIPS hardware.
// Random picks a deterministic round-robin victim rather than a truly
// random one, so tests can assert on exactly which slot a refill landed
// in without flaking.
type Soft struct {
	mu      sync.Mutex
	entries [NumEntries]Entry
	next    int
}

// NewSoft returns a Soft TLB with every entry invalidated.
func NewSoft() *Soft {
	s := &Soft{}
	for i := range s.entries {
		s.entries[i] = Entry{Hi: InvalidHi(i), Lo: InvalidLo()}
	}
	return s
}

// Write implements tlb.Device.
func (s *Soft) Write(hi Hi, lo pagetable.Leaf, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[index] = Entry{Hi: hi, Lo: lo, Valid: lo.Present()}
}

// Random implements tlb.Device.
func (s *Soft) Random(hi Hi, lo pagetable.Leaf) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.next
	s.next = (s.next + 1) % NumEntries
	s.entries[idx] = Entry{Hi: hi, Lo: lo, Valid: lo.Present()}
}

// Lookup returns the entry translating hi, if any entry currently does.
func (s *Soft) Lookup(hi Hi) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Valid && e.Hi == hi {
			return e, true
		}
	}
	return Entry{}, false
}

// Snapshot returns a copy of every entry, for tests asserting on full-TLB
// invalidation.
func (s *Soft) Snapshot() [NumEntries]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}
