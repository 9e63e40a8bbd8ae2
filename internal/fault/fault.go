// Package fault implements vm_fault: the entry point that classifies a
// fault, consults the current address space's regions for permission,
// walks/extends its page table, obtains a zero-filled frame for
// demand-allocated pages, encodes a TLB entry, and inserts it via a random
// replacement write (§4.2 of the specification).
package fault

import (
	"github.com/raymond-cen/Virtual-Memory/internal/addrspace"
	"github.com/raymond-cen/Virtual-Memory/internal/diag"
	"github.com/raymond-cen/Virtual-Memory/internal/errno"
	"github.com/raymond-cen/Virtual-Memory/internal/irq"
	"github.com/raymond-cen/Virtual-Memory/internal/pagetable"
	"github.com/raymond-cen/Virtual-Memory/internal/tlb"
)

// Type is the fault-type argument to vm_fault.
type Type int

const (
	// Read is VM_FAULT_READ: a read was attempted.
	Read Type = iota
	// Write is VM_FAULT_WRITE: a write was attempted.
	Write
	// ReadOnly is VM_FAULT_READONLY: a write to a page already known
	// read-only was attempted. This kernel has no copy-on-write support
	// and can never service such a fault.
	ReadOnly
)

// CurrentAddressSpace returns the faulting thread's address space, or nil
// if there is none. It is supplied explicitly by the caller rather than
// read from a package-level global — see the specification's design note
// on the "global current-address-space accessor": the current address
// space is strictly a value retrieved from the process accessor, never
// mutable package state.
type CurrentAddressSpace func() *addrspace.AddressSpace

// Handler drives vm_fault for one simulated CPU. TLB and Priority are
// CPU-local collaborators; Current supplies the faulting thread's address
// space.
type Handler struct {
	Current  CurrentAddressSpace
	TLB      tlb.Device
	Priority *irq.Priority

	// Diagnostics, if non-nil, observes repeated ENOMEM so an operator
	// can capture a postmortem profile. It never changes the returned
	// status (§4.2, "Supplemented diagnostic hook").
	Diagnostics *diag.ENOMEMTracker

	// Heap models kmalloc for the page table's interior nodes,
	// distinct from the physical frame pool. It defaults to
	// pagetable.AlwaysAllocates when left nil, so production callers
	// need not set it; a failing variant can be injected to exercise the
	// rollback path described in §4.2/§7.
	Heap pagetable.NodeAllocFunc
}

func (h *Handler) heapAlloc() bool {
	if h.Heap == nil {
		return pagetable.AlwaysAllocates()
	}
	return h.Heap()
}

// Fault runs vm_fault for the given fault type and address against the
// handler's current address space. It panics if there is no current
// process at all, matching the original kernel's "no curproc" panic
// during early boot — this is the one case the specification defines as
// a true kernel bug rather than a recoverable fault.
func (h *Handler) Fault(ft Type, faultAddress uint32) errno.Errno {
	if ft == ReadOnly {
		// A write to a page already known read-only: this kernel does
		// not implement copy-on-write and cannot service the fault.
		return errno.EFAULT
	}
	if ft != Read && ft != Write {
		return errno.EINVAL
	}

	if h.Current == nil {
		panic("fault: no current-address-space accessor configured")
	}
	as := h.Current()
	if as == nil {
		return errno.EFAULT
	}

	idx := pagetable.Decompose(faultAddress)
	if !idx.InRange() {
		return errno.ERANGE
	}

	as.Lock()
	defer as.Unlock()

	reg := as.Regions.Lookup(uintptr(faultAddress))
	if reg == nil {
		return errno.EFAULT
	}

	switch ft {
	case Write:
		if !reg.Writeable {
			return errno.EPERM
		}
	case Read:
		if !reg.Readable {
			return errno.EPERM
		}
	}
	// writeable is cached here and reused below for the leaf's Dirty
	// bit: exactly one region lookup per fault, per the specification's
	// resolution of the "region lookup duplication" design note.
	writeable := reg.Writeable

	pte, rb, err := as.Table.Walk(idx, h.heapAlloc)
	if err != errno.Success {
		h.noteOutcome(false)
		return err
	}

	if !pte.Present() {
		base, ok := as.Frames.AllocZeroed()
		if !ok {
			as.Table.Undo(rb)
			h.noteOutcome(false)
			return errno.ENOMEM
		}
		*pte = pagetable.EncodeLeaf(base, writeable)
	}

	h.insertTLB(faultAddress, *pte)
	h.noteOutcome(true)
	return errno.Success
}

func (h *Handler) insertTLB(faultAddress uint32, leaf pagetable.Leaf) {
	prev := h.Priority.Raise()
	defer h.Priority.Restore(prev)
	hi := tlb.Hi(faultAddress &^ (pagetable.PageSize - 1))
	h.TLB.Random(hi, leaf)
}

func (h *Handler) noteOutcome(success bool) {
	if h.Diagnostics == nil {
		return
	}
	if success {
		h.Diagnostics.NoteSuccess()
	} else {
		h.Diagnostics.NoteENOMEM()
	}
}
