// Package errno defines the status codes returned across the virtual
// memory subsystem's API: the fault handler and the address-space
// operations it backs.
package errno

// Errno is a kernel-style status code. The zero value means success;
// callers propagate a non-zero Errno exactly as it was produced, never
// wrapping or translating it, all the way out to the trap handler.
type Errno int

// Success is the zero value returned by every operation that did not fail.
const Success Errno = 0

const (
	// EPERM means the access mode requested at a fault address is
	// forbidden by the containing region's permission bits.
	EPERM Errno = iota + 1
	// ENOMEM means a frame or heap allocation failed. Any resource
	// acquired earlier in the same operation has already been released.
	ENOMEM
	// EFAULT means the address is not inside any region, the address
	// space is missing, or the access is a write to a read-only page
	// this kernel cannot service (no copy-on-write support).
	EFAULT
	// EINVAL means the fault type is unrecognised or a required
	// argument was nil.
	EINVAL
	// ERANGE means the address decomposed to a page-table index outside
	// the table's fixed dimensions — equivalent to a kernel-segment
	// address reaching the user fault path.
	ERANGE
)

func (e Errno) String() string {
	switch e {
	case Success:
		return "success"
	case EPERM:
		return "EPERM"
	case ENOMEM:
		return "ENOMEM"
	case EFAULT:
		return "EFAULT"
	case EINVAL:
		return "EINVAL"
	case ERANGE:
		return "ERANGE"
	default:
		return "EUNKNOWN"
	}
}

// Error satisfies the error interface so an Errno can be returned where an
// error is expected, as the fault tests do through errgroup.
func (e Errno) Error() string {
	return e.String()
}
