package env

import "sync"

// IDAllocator hands out small reusable context ids. Released ids are
// reused most-recent first; otherwise the counter advances.
type IDAllocator struct {
	mu   sync.Mutex
	free []uint64
	next uint64
}

// Acquire returns an unused id.
func (a *IDAllocator) Acquire() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id
	}
	id := a.next
	a.next++
	return id
}

// Release returns id to the free list.
func (a *IDAllocator) Release(id uint64) {
	a.mu.Lock()
	a.free = append(a.free, id)
	a.mu.Unlock()
}

// InUse returns the number of ids currently handed out.
func (a *IDAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.next) - len(a.free)
}
