// Package pagetable implements the three-level radix page table described
// by the virtual memory subsystem: a fixed 256-entry level-1 table of
// optional level-2 tables, each a fixed 64-entry table of optional level-3
// tables, each a fixed 64-entry table of encoded leaf words.
//
// The shape mirrors mem.Pmap_t's array-typed page in the teacher kernel:
// fixed-size arrays of a tagged word, not raw pointer chains, so a table's
// zero value is already a fully valid "all absent" table.
package pagetable

import "github.com/raymond-cen/Virtual-Memory/internal/errno"

const (
	// PageShift is PAGE_SIZE's base-2 exponent.
	PageShift = 12
	// PageSize is the size of a single page in bytes.
	PageSize = 1 << PageShift
	// PageFrame masks the upper 20 bits of a physical address: the frame
	// base once the low 12 offset bits are stripped.
	PageFrame Leaf = 0xfffff000

	// Level1Bits, Level2Bits, Level3Bits are the bit widths of the p1,
	// p2, p3 index fields of a decomposed virtual address. OffsetBits is
	// the page offset's width. Together they must sum to 32.
	Level1Bits = 8
	Level2Bits = 6
	Level3Bits = 6
	OffsetBits = 12

	// Level1Size, Level2Size, Level3Size are the fixed fan-out of each
	// level, derived from the bit widths above.
	Level1Size = 1 << Level1Bits
	Level2Size = 1 << Level2Bits
	Level3Size = 1 << Level3Bits
)

// Leaf is an encoded TLB-entry-low word: physical frame base in the upper
// 20 bits, plus Valid/Dirty flag bits in the low 12. A zero Leaf means
// "absent" — no physical frame has been assigned to this virtual page yet.
type Leaf uint32

const (
	// Valid marks a present mapping. Every non-zero Leaf carries it.
	Valid Leaf = 1 << 0
	// Dirty denotes *writable* in the MIPS TLB convention this
	// subsystem follows — not "has been modified".
	Dirty Leaf = 1 << 1
)

// Present reports whether l encodes an actual mapping.
func (l Leaf) Present() bool { return l != 0 }

// FrameBase returns the physical frame base packed into l.
func (l Leaf) FrameBase() uintptr { return uintptr(l & PageFrame) }

// Writable reports whether l's Dirty (writable) bit is set.
func (l Leaf) Writable() bool { return l&Dirty != 0 }

// EncodeLeaf packs a physical frame base and writability into a Leaf. base
// must already be page-aligned; any low bits are masked away.
func EncodeLeaf(base uintptr, writable bool) Leaf {
	l := Leaf(base) & PageFrame
	l |= Valid
	if writable {
		l |= Dirty
	}
	return l
}

// Level3 is the leaf-bearing bottom level: 64 encoded words, zero meaning
// absent.
type Level3 [Level3Size]Leaf

// Level2 is the middle level: 64 optional pointers to Level3 tables.
type Level2 [Level2Size]*Level3

// Level1 is the top level: 256 optional pointers to Level2 tables.
type Level1 [Level1Size]*Level2

// Table owns a Level1 and is the root of one address space's mappings.
type Table struct {
	L1 *Level1
}

// Indices is the (p1, p2, p3) decomposition of a virtual address, plus its
// page offset.
type Indices struct {
	P1     uint32
	P2     uint32
	P3     uint32
	Offset uint32
}

// Decompose splits a virtual address into its p1|p2|p3|offset fields per
// the 8|6|6|12 layout. It never fails — callers range-check the result
// against Level1Size/Level2Size/Level3Size themselves, matching the
// original kernel's separate bounds check in vm_fault and insert_pte/
// lookup_pte.
func Decompose(vaddr uint32) Indices {
	return Indices{
		P1:     vaddr >> (Level2Bits + Level3Bits + OffsetBits),
		P2:     (vaddr >> (Level3Bits + OffsetBits)) & (Level2Size - 1),
		P3:     (vaddr >> OffsetBits) & (Level3Size - 1),
		Offset: vaddr & (PageSize - 1),
	}
}

// InRange reports whether idx's fields all fall within the fixed table
// dimensions. A virtual address that decomposes out of range is a
// kernel-segment address reaching the user fault path.
func (idx Indices) InRange() bool {
	return idx.P1 < Level1Size && idx.P2 < Level2Size && idx.P3 < Level3Size
}

// New allocates an empty table: a Level1 with all 256 slots nil. It never
// fails in this Go re-expression; interior-node allocation, modeled by the
// NodeAllocFunc passed to Walk and DeepCopy, is the only fallible step.
func New() *Table {
	return &Table{L1: &Level1{}}
}

// Lookup returns the leaf at the given indices without allocating any
// interior node. It returns (0, false) if any interior node on the path is
// absent — the "structural absence of a parent" case from the design
// notes, which never surfaces past the fault handler as a distinct error
// (the fault handler always re-derives it via Walk instead).
func (t *Table) Lookup(idx Indices) (Leaf, bool) {
	l2 := t.L1[idx.P1]
	if l2 == nil {
		return 0, false
	}
	l3 := l2[idx.P2]
	if l3 == nil {
		return 0, false
	}
	return l3[idx.P3], true
}

// Rollback records interior nodes freshly allocated by a single Walk call
// so a caller can undo them if a later step in the same operation fails.
// Only resources created during the current invocation are ever rolled
// back — a preexisting Level2 or Level3 is never touched.
type Rollback struct {
	allocatedL2 bool // t.L1[idx.P1] was nil and is now populated
	allocatedL3 bool // the Level2 slot at idx.P2 was nil and is now populated
	p1          uint32
	p2          uint32
}

// Undo frees exactly the interior nodes this Rollback recorded, restoring
// the table to its pre-Walk shape.
func (t *Table) Undo(rb Rollback) {
	if rb.allocatedL3 {
		l2 := t.L1[rb.p1]
		if l2 != nil {
			l2[rb.p2] = nil
		}
	}
	if rb.allocatedL2 {
		t.L1[rb.p1] = nil
	}
}

// NodeAllocFunc models the kernel-heap allocation (kmalloc) backing a
// fresh interior node. It is a separate resource from frame.Allocator's
// physical frame pool — per §1 of the specification, kernel heap memory
// is assumed to exist but is not designed here — yet Walk must still be
// able to observe and roll back its failure, so callers inject it rather
// than Walk assuming heap allocation always succeeds.
type NodeAllocFunc func() (ok bool)

// AlwaysAllocates is a NodeAllocFunc that never fails, suitable for
// production use where the kernel heap is assumed never to be exhausted
// mid-fault.
func AlwaysAllocates() bool { return true }

// Walk returns a pointer to the leaf slot at idx, lazily allocating the
// Level2/Level3 interior nodes on the path if they are missing via
// allocNode. On allocation failure it returns a nil leaf pointer, ENOMEM,
// and an empty Rollback: a Level2 allocated just before a failing Level3
// allocation is unwound by Walk itself, so the table is left in its
// pre-Walk shape. On success the returned Rollback records the interior
// nodes this call linked in, and a caller whose later step fails calls
// Undo to unwind them, per the "only resources created during this fault
// invocation are rolled back" rule.
//
// idx must already satisfy idx.InRange(); Walk does not itself range-check.
func (t *Table) Walk(idx Indices, allocNode NodeAllocFunc) (*Leaf, Rollback, errno.Errno) {
	var rb Rollback
	rb.p1, rb.p2 = idx.P1, idx.P2

	l2 := t.L1[idx.P1]
	if l2 == nil {
		if !allocNode() {
			return nil, rb, errno.ENOMEM
		}
		l2 = &Level2{}
		t.L1[idx.P1] = l2
		rb.allocatedL2 = true
	}

	l3 := l2[idx.P2]
	if l3 == nil {
		if !allocNode() {
			if rb.allocatedL2 {
				t.L1[idx.P1] = nil
				rb.allocatedL2 = false
			}
			return nil, rb, errno.ENOMEM
		}
		l3 = &Level3{}
		l2[idx.P2] = l3
		rb.allocatedL3 = true
	}

	return &l3[idx.P3], rb, errno.Success
}

// FrameAllocFunc allocates a zero-filled physical frame, returning its
// base address, or ok=false on exhaustion. FrameFreeFunc releases a frame
// previously returned by FrameAllocFunc. Both are supplied by callers
// rather than imported, per the subsystem's external-collaborator
// boundary (§1, §6 of the specification): this package never talks to a
// concrete allocator.
type FrameAllocFunc func() (base uintptr, ok bool)
type FrameFreeFunc func(base uintptr)

// Destroy visits every present leaf of t, freeing its frame via free, then
// frees every Level3, every Level2, and finally the Level1 itself. The
// traversal visits every Level1 slot and every slot of each present Level2
// — there is no early exit — matching vm_freePTE's unconditional full sweep.
func (t *Table) Destroy(free FrameFreeFunc) {
	if t == nil || t.L1 == nil {
		return
	}
	for i := range t.L1 {
		l2 := t.L1[i]
		if l2 == nil {
			continue
		}
		for j := range l2 {
			l3 := l2[j]
			if l3 == nil {
				continue
			}
			for k := range l3 {
				if l3[k].Present() {
					free(l3[k].FrameBase())
				}
			}
			l2[j] = nil
		}
		t.L1[i] = nil
	}
	t.L1 = nil
}

// CopyFunc copies PageSize bytes from the frame at src into the frame at
// dst, both identified by physical frame base via the kernel's
// direct-mapped segment. It mirrors the bzero+memmove pair the original
// as_copy performs through PADDR_TO_KVADDR.
type CopyFunc func(dst, src uintptr)

// DeepCopy walks every position of src and reproduces it in dst: for each
// present leaf, a fresh frame is allocated via alloc, its contents copied
// from the source frame via cp, and the destination leaf is encoded with
// the new frame base, the source's Dirty bit, and Valid set. Interior
// nodes are allocated in dst to mirror src's shape exactly — including
// Level2/Level3 tables that exist but hold no present leaves, matching the
// original's unconditional per-index kmalloc inside the i/j loops.
//
// On any allocation failure mid-walk, DeepCopy returns ENOMEM; the caller
// is responsible for destroying dst (via Destroy) to release whatever this
// call had already allocated, exactly as as_copy delegates that cleanup to
// as_destroy.
func (dst *Table) DeepCopy(src *Table, alloc FrameAllocFunc, cp CopyFunc, allocNode NodeAllocFunc) errno.Errno {
	for i := 0; i < Level1Size; i++ {
		srcL2 := src.L1[i]
		if srcL2 == nil {
			continue
		}
		if !allocNode() {
			return errno.ENOMEM
		}
		dstL2 := &Level2{}
		dst.L1[i] = dstL2

		for j := 0; j < Level2Size; j++ {
			srcL3 := srcL2[j]
			if srcL3 == nil {
				continue
			}
			if !allocNode() {
				return errno.ENOMEM
			}
			dstL3 := &Level3{}
			dstL2[j] = dstL3

			for k := 0; k < Level3Size; k++ {
				srcLeaf := srcL3[k]
				if !srcLeaf.Present() {
					continue
				}
				newBase, ok := alloc()
				if !ok {
					return errno.ENOMEM
				}
				cp(newBase, srcLeaf.FrameBase())
				dstL3[k] = EncodeLeaf(newBase, srcLeaf.Writable())
			}
		}
	}
	return errno.Success
}

// CountPresent returns the number of present leaves and the number of
// interior nodes (Level2 + Level3 tables) currently allocated in t. It is
// used by the address space's diagnostic Stats() query and by tests
// checking the teardown-balance property.
func (t *Table) CountPresent() (leaves, interiorNodes int) {
	if t == nil || t.L1 == nil {
		return 0, 0
	}
	for _, l2 := range t.L1 {
		if l2 == nil {
			continue
		}
		interiorNodes++
		for _, l3 := range l2 {
			if l3 == nil {
				continue
			}
			interiorNodes++
			for _, leaf := range l3 {
				if leaf.Present() {
					leaves++
				}
			}
		}
	}
	return leaves, interiorNodes
}
