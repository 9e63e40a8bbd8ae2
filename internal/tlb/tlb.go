// Package tlb models the MIPS-style software-refilled translation
// lookaside buffer: tlb_write/tlb_random plus the invalid-entry sentinel
// constants, per §6 of the specification. The hardware itself is an
// external collaborator; this package only defines the interface the
// fault handler and address-space activation code drive it through.
package tlb

import "github.com/raymond-cen/Virtual-Memory/internal/pagetable"

// NumEntries is NUM_TLB: the fixed number of hardware TLB entries.
const NumEntries = 64

// Hi is an entry-hi word: the virtual page number an entry translates
// from.
type Hi uint32

// InvalidHi returns the entry-hi sentinel tlb_write uses to invalidate
// slot i, matching TLBHI_INVALID(i) — distinct per slot so no two
// invalidated entries alias the same virtual page.
func InvalidHi(i int) Hi {
	return Hi(uint32(i) << pagetable.OffsetBits)
}

// InvalidLo is the entry-lo sentinel for an invalidated slot, matching
// TLBLO_INVALID().
func InvalidLo() pagetable.Leaf { return 0 }

// Device is the hardware TLB as seen by this subsystem.
type Device interface {
	// Write installs (hi, lo) at a specific index, used to invalidate
	// every entry during Activate/CompleteLoad.
	Write(hi Hi, lo pagetable.Leaf, index int)
	// Random installs (hi, lo) at an implementation-chosen index, used
	// by the fault handler to refill a freshly resolved translation.
	Random(hi Hi, lo pagetable.Leaf)
}
