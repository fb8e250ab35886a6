package signaling

import "sync/atomic"

// idAllocator hands out connection identities: strictly increasing, starting
// at 1, never reused for the lifetime of the process.
type idAllocator struct {
	last atomic.Uint64
}

func (a *idAllocator) NextID() uint64 {
	return a.last.Add(1)
}
