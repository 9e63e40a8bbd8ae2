package frame

import (
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/raymond-cen/Virtual-Memory/internal/pagetable"
)

// SimPool is a host-process stand-in for the kernel's physical frame
// allocator. It backs every frame with a real byte slice so page contents
// actually persist across CopyFrame/AllocZeroed/Free, and it enforces a
// finite capacity with a weighted semaphore so tests can drive genuine
// ENOMEM backpressure instead of an unbounded slice that never runs out.
//
// This is the subsystem's own exercised implementation of the frame.Allocator
// boundary, not a mock: address-space and fault-handler tests run against
// it exactly as production code would run against the kernel's real
// allocator.
type SimPool struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	frames map[uintptr][]byte
	nextID uintptr
	freed  []uintptr // LIFO of freed bases available for reuse
}

// NewSimPool creates a pool that can hand out at most capacity frames at
// once.
func NewSimPool(capacity int64) *SimPool {
	return &SimPool{
		sem:    semaphore.NewWeighted(capacity),
		frames: make(map[uintptr][]byte),
		nextID: 0x1000, // keep 0 reserved as "no frame"
	}
}

// AllocZeroed implements frame.Allocator.
func (p *SimPool) AllocZeroed() (uintptr, bool) {
	if !p.sem.TryAcquire(1) {
		return 0, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var base uintptr
	if n := len(p.freed); n > 0 {
		base = p.freed[n-1]
		p.freed = p.freed[:n-1]
	} else {
		base = p.nextID
		p.nextID += pagetable.PageSize
	}
	p.frames[base] = make([]byte, pagetable.PageSize)
	return base, true
}

// Free implements frame.Allocator. Freeing a base AllocZeroed never
// returned panics, matching free_kpages' contract on a bad address.
func (p *SimPool) Free(base uintptr) {
	p.mu.Lock()
	_, ok := p.frames[base]
	if ok {
		delete(p.frames, base)
		p.freed = append(p.freed, base)
	}
	p.mu.Unlock()

	if !ok {
		panic(fmt.Sprintf("frame: Free of unknown base %#x", base))
	}
	p.sem.Release(1)
}

// CopyFrame implements frame.Allocator.
func (p *SimPool) CopyFrame(dst, src uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.frames[dst]
	if !ok {
		panic(fmt.Sprintf("frame: CopyFrame to unknown base %#x", dst))
	}
	s, ok := p.frames[src]
	if !ok {
		panic(fmt.Sprintf("frame: CopyFrame from unknown base %#x", src))
	}
	copy(d, s)
}

// ReadByte and WriteByte let tests observe and seed frame contents by
// physical base and in-page offset, standing in for the direct-mapped
// kernel segment the original kernel uses to read/write a user frame from
// kernel code.
func (p *SimPool) ReadByte(base uintptr, off int) byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[base][off]
}

func (p *SimPool) WriteByte(base uintptr, off int, v byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[base][off] = v
}

// InUse reports how many frames are currently allocated, for the
// teardown-balance property (§8.5): Destroying an address space must
// bring this back to its pre-create value.
func (p *SimPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// TryAcquireN is exposed so tests can pre-exhaust the pool deterministically
// without tracking bases, modeling "only N frames of physical memory
// remain" ahead of a fault.
func (p *SimPool) TryAcquireN(n int64) bool {
	return p.sem.TryAcquire(n)
}

// Release gives back n units of raw capacity acquired via TryAcquireN,
// without any corresponding frame bookkeeping.
func (p *SimPool) Release(n int64) {
	p.sem.Release(n)
}
