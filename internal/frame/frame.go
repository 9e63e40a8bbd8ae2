// Package frame models the kernel's physical-frame allocator
// (alloc_kpages/free_kpages) as an interface, per §1 and §6 of the
// specification: the allocator itself is an external collaborator and is
// not designed here. The interface is intentionally the minimal surface
// the page-table walker and fault handler need.
package frame

// Allocator is the subsystem's view of the kernel frame pool: it hands out
// zero-filled physical frames and takes them back, and lets the copy
// walker move bytes between two frames identified by their physical base
// (standing in for the direct-mapped kernel segment's
// PADDR_TO_KVADDR/KVADDR_TO_PADDR round trip).
type Allocator interface {
	// AllocZeroed returns the base of a freshly zeroed page-sized frame,
	// or ok=false if the pool is exhausted.
	AllocZeroed() (base uintptr, ok bool)
	// Free releases a frame previously returned by AllocZeroed. Freeing
	// an address not currently allocated is a programmer error and may
	// panic, matching free_kpages' contract.
	Free(base uintptr)
	// CopyFrame copies PageSize bytes from the frame at src into the
	// frame at dst.
	CopyFrame(dst, src uintptr)
}
