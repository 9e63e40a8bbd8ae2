// Package region implements the per-address-space list of named virtual
// regions: contiguous, page-aligned virtual ranges carrying RWX
// permissions plus a saved writability shadow used during ELF loading.
//
// The list is singly linked and insertion-ordered at the head, mirroring
// as_define_region's "new->next = as->as_regions; as->as_regions = new".
// Regions need not be sorted and may overlap in principle; the fault
// handler (package fault) always returns the first region containing an
// address, matching get_region/lookup_region in the original kernel.
package region

// Kind is a diagnostic-only tag naming what a region is for. It carries no
// enforcement semantics — permission checks are driven entirely by
// Readable/Writeable/Executable. String names the kind; neither the fault
// path nor cmd/vmdiag reads it.
type Kind int

const (
	KindOther Kind = iota
	KindCode
	KindData
	KindStack
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindData:
		return "data"
	case KindStack:
		return "stack"
	default:
		return "other"
	}
}

// Region is one contiguous, page-aligned virtual range with uniform
// permissions.
type Region struct {
	VBase uintptr
	Size  uintptr

	Readable   bool
	Writeable  bool
	Executable bool

	// WriteableSaved holds the region's true writability while Writeable
	// is temporarily forced to true by PrepareLoad. It is set once, at
	// region creation, so a nested PrepareLoad/CompleteLoad pair can
	// never collapse the true permission into "always writable".
	WriteableSaved bool

	Kind Kind

	next *Region
}

// Contains reports whether addr falls inside [VBase, VBase+Size).
func (r *Region) Contains(addr uintptr) bool {
	return addr >= r.VBase && addr-r.VBase < r.Size
}

// List is a singly linked list of regions, newest first.
type List struct {
	head *Region
}

// Prepend adds r to the front of the list.
func (l *List) Prepend(r *Region) {
	r.next = l.head
	l.head = r
}

// Lookup returns the first region containing addr, scanning head-first,
// or nil if none does. This is the single region lookup the fault handler
// performs per fault — its result (in particular Writeable) is cached by
// the caller rather than looked up a second time.
func (l *List) Lookup(addr uintptr) *Region {
	for r := l.head; r != nil; r = r.next {
		if r.Contains(addr) {
			return r
		}
	}
	return nil
}

// Clear empties the list.
func (l *List) Clear() {
	l.head = nil
}

// Each calls fn for every region in the list, head first.
func (l *List) Each(fn func(*Region)) {
	for r := l.head; r != nil; r = r.next {
		fn(r)
	}
}

// Clone returns a deep copy of l: every Region is a fresh allocation with
// identical fields, in the same order, and the original list is
// untouched. It mirrors as_copy's region-list walk in the original
// addrspace.c, which rebuilds the destination list node by node rather
// than sharing any Region.
func (l *List) Clone() *List {
	out := &List{}
	var tail *Region
	for r := l.head; r != nil; r = r.next {
		cp := &Region{
			VBase:          r.VBase,
			Size:           r.Size,
			Readable:       r.Readable,
			Writeable:      r.Writeable,
			Executable:     r.Executable,
			WriteableSaved: r.WriteableSaved,
			Kind:           r.Kind,
		}
		if tail == nil {
			out.head = cp
		} else {
			tail.next = cp
		}
		tail = cp
	}
	return out
}
