package models

import "sync"

// A handle allocator that hands out sequential object handles and recycles
// released ones.
type HandleAllocator struct {
	mutex   sync.Mutex
	current uint32
	free    []uint32
}

// New returns an unused handle. Released handles are handed out again before
// new ones are minted.
func (a *HandleAllocator) New() uint32 {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if n := len(a.free); n != 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		return h
	}

	a.current++
	return a.current
}

// Release marks the given handle as reusable.
func (a *HandleAllocator) Release(h uint32) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.free = append(a.free, h)
}
