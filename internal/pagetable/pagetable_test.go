package pagetable

import (
	"testing"

	"github.com/raymond-cen/Virtual-Memory/internal/errno"
)

func TestDecompose(t *testing.T) {
	// 0x80123456 = 1000 0000 0001 0010 0011 0100 0101 0110
	idx := Decompose(0x80123456)
	if idx.P1 != 0x80 {
		t.Errorf("P1 = %#x, want 0x80", idx.P1)
	}
	if idx.P2 != ((0x80123456 >> 18) & 0x3f) {
		t.Errorf("P2 = %#x", idx.P2)
	}
	if idx.Offset != 0x456 {
		t.Errorf("Offset = %#x, want 0x456", idx.Offset)
	}
	if !idx.InRange() {
		t.Errorf("expected in range")
	}
}

func TestDecomposeAlwaysInRange(t *testing.T) {
	// 8+6+6+12 bits sum to 32, so every 32-bit address decomposes in range.
	addrs := []uint32{0, 0xffffffff, 0x80000000, 0x401000}
	for _, a := range addrs {
		if !Decompose(a).InRange() {
			t.Errorf("Decompose(%#x) out of range", a)
		}
	}
}

func TestEncodeLeaf(t *testing.T) {
	l := EncodeLeaf(0x12345000, true)
	if !l.Present() {
		t.Fatal("expected present")
	}
	if l.FrameBase() != 0x12345000 {
		t.Errorf("FrameBase = %#x", l.FrameBase())
	}
	if !l.Writable() {
		t.Error("expected writable")
	}

	ro := EncodeLeaf(0x12345000, false)
	if ro.Writable() {
		t.Error("expected not writable")
	}
}

func TestLookupAbsent(t *testing.T) {
	tbl := New()
	idx := Decompose(0x80001000)
	if l, ok := tbl.Lookup(idx); ok || l.Present() {
		t.Fatalf("expected absent, got %v %v", l, ok)
	}
}

func TestWalkAllocatesAndLookupSeesLeaf(t *testing.T) {
	tbl := New()
	idx := Decompose(0x80001000)

	pte, _, err := tbl.Walk(idx, AlwaysAllocates)
	if err != errno.Success {
		t.Fatalf("Walk failed: %v", err)
	}
	if pte.Present() {
		t.Fatal("freshly walked leaf should be absent")
	}
	*pte = EncodeLeaf(0x9000, true)

	got, ok := tbl.Lookup(idx)
	if !ok || got.FrameBase() != 0x9000 {
		t.Fatalf("Lookup after Walk = %v, %v", got, ok)
	}
}

func TestWalkRollbackOnL3Failure(t *testing.T) {
	tbl := New()
	idx := Decompose(0x80001000)

	calls := 0
	allocNode := func() bool {
		calls++
		// succeed on the L2 allocation, fail on the L3 allocation.
		return calls == 1
	}

	_, rb, err := tbl.Walk(idx, allocNode)
	if err != errno.ENOMEM {
		t.Fatalf("expected ENOMEM, got %v", err)
	}
	// Walk should have already unwound the L2 it speculatively allocated.
	if tbl.L1[idx.P1] != nil {
		t.Fatal("L2 should have been unwound after L3 allocation failure")
	}
	tbl.Undo(rb) // idempotent: nothing left to undo
	if tbl.L1[idx.P1] != nil {
		t.Fatal("Undo should be a no-op here")
	}
}

func TestWalkRollbackOnLeafFrameFailure(t *testing.T) {
	// Simulates the fault handler's pattern: Walk succeeds (allocating
	// interior nodes), but the frame allocator then fails, so the caller
	// must call Undo itself.
	tbl := New()
	idx := Decompose(0x80001000)

	_, rb, err := tbl.Walk(idx, AlwaysAllocates)
	if err != errno.Success {
		t.Fatalf("Walk failed: %v", err)
	}
	if tbl.L1[idx.P1] == nil {
		t.Fatal("expected L2 allocated")
	}
	tbl.Undo(rb)
	if tbl.L1[idx.P1] != nil {
		t.Fatal("Undo should free the L2/L3 this Walk allocated")
	}
}

func TestDestroySweepsEverything(t *testing.T) {
	tbl := New()
	idx1 := Decompose(0x80001000)
	idx2 := Decompose(0x81002000)

	freed := map[uintptr]bool{}
	for i, idx := range []Indices{idx1, idx2} {
		pte, _, err := tbl.Walk(idx, AlwaysAllocates)
		if err != errno.Success {
			t.Fatal(err)
		}
		*pte = EncodeLeaf(uintptr(0x1000*(i+1)), true)
	}

	tbl.Destroy(func(base uintptr) { freed[base] = true })

	if !freed[0x1000] || !freed[0x2000] {
		t.Fatalf("expected both frames freed, got %v", freed)
	}
	leaves, nodes := tbl.CountPresent()
	if leaves != 0 || nodes != 0 {
		t.Fatalf("expected empty table after Destroy, got %d leaves %d nodes", leaves, nodes)
	}
}

func TestDeepCopyMirrorsShapeAndContents(t *testing.T) {
	src := New()
	idx := Decompose(0x80001000)
	pte, _, err := src.Walk(idx, AlwaysAllocates)
	if err != errno.Success {
		t.Fatal(err)
	}
	*pte = EncodeLeaf(0x5000, true)

	srcBytes := map[uintptr]byte{0x5000: 0xAB}
	dstBytes := map[uintptr]byte{}
	nextFrame := uintptr(0x6000)

	dst := New()
	allocFn := func() (uintptr, bool) {
		b := nextFrame
		nextFrame += PageSize
		return b, true
	}
	copyFn := func(d, s uintptr) { dstBytes[d] = srcBytes[s] }

	if err := dst.DeepCopy(src, allocFn, copyFn, AlwaysAllocates); err != errno.Success {
		t.Fatalf("DeepCopy failed: %v", err)
	}

	got, ok := dst.Lookup(idx)
	if !ok || !got.Present() {
		t.Fatal("expected leaf present in dst")
	}
	if got.FrameBase() == 0x5000 {
		t.Fatal("dst leaf should point at a fresh frame, not src's")
	}
	if !got.Writable() {
		t.Error("Dirty bit should have been preserved")
	}
	if dstBytes[got.FrameBase()] != 0xAB {
		t.Errorf("copied byte = %#x, want 0xAB", dstBytes[got.FrameBase()])
	}
}

func TestDeepCopyAbortsOnAllocationFailure(t *testing.T) {
	src := New()
	idx := Decompose(0x80001000)
	pte, _, err := src.Walk(idx, AlwaysAllocates)
	if err != errno.Success {
		t.Fatal(err)
	}
	*pte = EncodeLeaf(0x5000, false)

	dst := New()
	allocFn := func() (uintptr, bool) { return 0, false }
	copyFn := func(uintptr, uintptr) {}

	err = dst.DeepCopy(src, allocFn, copyFn, AlwaysAllocates)
	if err != errno.ENOMEM {
		t.Fatalf("expected ENOMEM, got %v", err)
	}
}

func TestCountPresent(t *testing.T) {
	tbl := New()
	if l, n := tbl.CountPresent(); l != 0 || n != 0 {
		t.Fatalf("empty table should report 0,0, got %d,%d", l, n)
	}
	idx := Decompose(0x80001000)
	pte, _, _ := tbl.Walk(idx, AlwaysAllocates)
	*pte = EncodeLeaf(0x1000, true)

	leaves, nodes := tbl.CountPresent()
	if leaves != 1 {
		t.Errorf("leaves = %d, want 1", leaves)
	}
	if nodes != 2 {
		t.Errorf("nodes = %d, want 2 (one L2, one L3)", nodes)
	}
}
