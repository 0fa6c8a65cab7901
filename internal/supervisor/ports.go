package supervisor

import "sync"

// DefaultPortBase is the first port handed out for spawned game servers.
const DefaultPortBase = 20100

// PortAllocator hands out listening ports for spawned game servers. Ports
// are strictly increasing and never reused within the process lifetime.
//
// There is no upper bound: a service that starts enough games will
// eventually walk past the valid port range. That exhaustion is an accepted
// operational limitation of the single-process design and is surfaced in
// the operator documentation rather than silently wrapped.
type PortAllocator struct {
	mu   sync.Mutex
	next int
}

// NewPortAllocator creates an allocator starting at base, or at
// DefaultPortBase when base is zero.
func NewPortAllocator(base int) *PortAllocator {
	if base <= 0 {
		base = DefaultPortBase
	}
	return &PortAllocator{next: base}
}

// Next returns the next unused port.
func (a *PortAllocator) Next() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	port := a.next
	a.next++
	return port
}
