// Package addrspace implements the per-process address space: the owner
// of exactly one region.List and one pagetable.Table, exposing create,
// copy, destroy, activate/deactivate, define-region, prepare-load,
// complete-load, and define-stack (§4.1 of the specification).
//
// Every mutating operation takes the address space's own mutex for its
// duration, mirroring Vm_t's embedded sync.Mutex and its
// Lock_pmap/Unlock_pmap/Lockassert_pmap convention in the teacher kernel —
// this is what makes "each fault is atomic with respect to other faults
// on the same address space" (§5, §8) true of concurrent goroutines
// standing in for concurrent CPUs.
package addrspace

import (
	"sync"

	"github.com/raymond-cen/Virtual-Memory/internal/errno"
	"github.com/raymond-cen/Virtual-Memory/internal/frame"
	"github.com/raymond-cen/Virtual-Memory/internal/irq"
	"github.com/raymond-cen/Virtual-Memory/internal/pagetable"
	"github.com/raymond-cen/Virtual-Memory/internal/region"
	"github.com/raymond-cen/Virtual-Memory/internal/tlb"
)

const (
	// PageSize mirrors pagetable.PageSize for callers that only need the
	// address-space API.
	PageSize = pagetable.PageSize

	// UserStackSize is USER_STACK_SIZE = 16 * PAGE_SIZE.
	UserStackSize = 16 * PageSize

	// UserStack is the top of the user-mappable segment and the initial
	// stack pointer handed to a freshly loaded program.
	UserStack uintptr = 0x80000000

	// UserSegmentEnd is the first address not mappable by a user
	// address space — the start of the kernel's direct-mapped segment.
	// It equals UserStack in this subsystem: the stack region is defined
	// to end exactly at the top of the user segment.
	UserSegmentEnd uintptr = UserStack
)

// AddressSpace owns a region list and a three-level page table, plus a
// reference to the frame pool it draws physical pages from.
type AddressSpace struct {
	mu        sync.Mutex
	pgflTaken bool

	Regions region.List
	Table   *pagetable.Table
	Frames  frame.Allocator
}

// lockPmap acquires the address space's mutex, matching Vm_t.Lock_pmap.
func (as *AddressSpace) lockPmap() {
	as.mu.Lock()
	as.pgflTaken = true
}

// unlockPmap releases the address space's mutex, matching
// Vm_t.Unlock_pmap.
func (as *AddressSpace) unlockPmap() {
	as.pgflTaken = false
	as.mu.Unlock()
}

// LockAssert panics if the caller does not currently hold the address
// space's lock. It exists so internal helpers shared with package fault
// can assert their precondition the way Vm_t.Lockassert_pmap does.
func (as *AddressSpace) LockAssert() {
	if !as.pgflTaken {
		panic("addrspace: pmap lock must be held")
	}
}

// Lock and Unlock expose the address space's mutual exclusion to package
// fault, which must hold it for the full duration of a single fault.
func (as *AddressSpace) Lock()   { as.lockPmap() }
func (as *AddressSpace) Unlock() { as.unlockPmap() }

// Create allocates a new, empty address space: an empty region list and a
// level-1 table with all 256 slots nil.
//
// as_create in the original kernel can fail with ENOMEM if kmalloc of the
// page directory fails; this Go re-expression's level-1 table is
// heap-allocated interior-node bookkeeping, not a frame drawn from the
// finite physical pool modeled by frame.Allocator, so there is no
// recoverable-failure point left to surface here. The
// Errno return is kept so the signature matches every other address-space
// operation and so a future caller that does want to inject heap exhaustion
// has somewhere to put it.
func Create(frames frame.Allocator) (*AddressSpace, errno.Errno) {
	return &AddressSpace{
		Table:  pagetable.New(),
		Frames: frames,
	}, errno.Success
}

// DefineRegion page-aligns [vaddr, vaddr+size) down/up respectively and
// prepends a new region covering it, rejecting ranges that escape the
// user segment. writeableSaved is recorded as w at creation time.
func (as *AddressSpace) DefineRegion(vaddr, size uintptr, r, w, x bool, kind region.Kind) errno.Errno {
	as.lockPmap()
	defer as.unlockPmap()

	base := vaddr &^ (PageSize - 1)
	size += vaddr - base
	size = (size + PageSize - 1) &^ (PageSize - 1)

	if base+size > UserSegmentEnd || base+size < base {
		return errno.EFAULT
	}

	reg := &region.Region{
		VBase:          base,
		Size:           size,
		Readable:       r,
		Writeable:      w,
		Executable:     x,
		WriteableSaved: w,
		Kind:           kind,
	}
	as.Regions.Prepend(reg)
	return errno.Success
}

// DefineStack sets *sp = UserStack and defines the fixed-size stack region
// ending at UserStack with permissions r=1,w=1,x=0.
func (as *AddressSpace) DefineStack(sp *uintptr) errno.Errno {
	*sp = UserStack
	return as.DefineRegion(UserStack-UserStackSize, UserStackSize, true, true, false, region.KindStack)
}

// PrepareLoad sets every region's Writeable to true, leaving
// WriteableSaved untouched, so the ELF loader can write read-only
// segments during program load.
func (as *AddressSpace) PrepareLoad() {
	as.lockPmap()
	defer as.unlockPmap()
	as.Regions.Each(func(r *region.Region) { r.Writeable = true })
}

// CompleteLoad restores every region's Writeable to its WriteableSaved
// value and invalidates the full TLB under a raised interrupt priority.
func (as *AddressSpace) CompleteLoad(dev tlb.Device, pri *irq.Priority) {
	as.lockPmap()
	as.Regions.Each(func(r *region.Region) { r.Writeable = r.WriteableSaved })
	as.unlockPmap()

	invalidateTLB(dev, pri)
}

// Activate invalidates all NUM_TLB TLB entries while interrupts are
// raised to the highest priority level. It takes no address space and
// always invalidates; it has no no-op case for a missing current address
// space.
func Activate(dev tlb.Device, pri *irq.Priority) {
	invalidateTLB(dev, pri)
}

// Deactivate is equivalent to Activate, matching as_deactivate.
func Deactivate(dev tlb.Device, pri *irq.Priority) {
	Activate(dev, pri)
}

func invalidateTLB(dev tlb.Device, pri *irq.Priority) {
	prev := pri.Raise()
	defer pri.Restore(prev)
	for i := 0; i < tlb.NumEntries; i++ {
		dev.Write(tlb.InvalidHi(i), tlb.InvalidLo(), i)
	}
}

// Destroy frees every region, then every present frame and interior node
// of the page table, then is otherwise inert. It is idempotent against a
// nil address space.
func Destroy(as *AddressSpace) {
	if as == nil {
		return
	}
	as.lockPmap()
	defer as.unlockPmap()

	as.Regions.Clear()
	as.Table.Destroy(func(base uintptr) { as.Frames.Free(base) })
}

// Stats reports the number of present leaves and allocated interior nodes
// in as's page table: a read-only diagnostic query, supplemented beyond
// the distilled spec, used by tests checking the address space's shape.
func (as *AddressSpace) Stats() (leaves, interiorNodes int) {
	as.lockPmap()
	defer as.unlockPmap()
	return as.Table.CountPresent()
}

// Copy creates a new address space, deep-copies old's region list, then
// deep-copies its page table (allocating fresh frames and byte-copying
// contents). Any failure mid-copy destroys the partial new address space
// and returns ENOMEM.
func Copy(old *AddressSpace, frames frame.Allocator) (*AddressSpace, errno.Errno) {
	return CopyWithHeap(old, frames, pagetable.AlwaysAllocates)
}

// CopyWithHeap is Copy with an injectable kernel-heap allocator for the
// destination page table's interior nodes, matching as_copy's own
// kmalloc failure checks on pagetable[i] and pagetable[i][j] in the
// original addrspace.c. Production callers use Copy; tests use this to
// exercise the ENOMEM/rollback path deterministically.
func CopyWithHeap(old *AddressSpace, frames frame.Allocator, allocNode pagetable.NodeAllocFunc) (*AddressSpace, errno.Errno) {
	if old == nil {
		return nil, errno.EINVAL
	}

	newAS, err := Create(frames)
	if err != errno.Success {
		return nil, err
	}

	allocFn := func() (uintptr, bool) { return frames.AllocZeroed() }
	copyFn := func(dst, src uintptr) { frames.CopyFrame(dst, src) }

	old.lockPmap()
	newAS.Regions = *old.Regions.Clone()
	err = newAS.Table.DeepCopy(old.Table, allocFn, copyFn, allocNode)
	old.unlockPmap()

	if err != errno.Success {
		Destroy(newAS)
		return nil, errno.ENOMEM
	}
	return newAS, errno.Success
}
