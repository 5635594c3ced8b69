package engine

// handleHeap is an indexed binary min-heap of object handles keyed by a
// numeric priority. The position map makes arbitrary-handle removal O(log n),
// which container/heap cannot offer without the same bookkeeping.
//
// A handle has at most one live entry: pushing an already-queued handle
// removes the previous entry and reinserts at the new priority.
type handleHeap struct {
	handles    []uint32
	priorities []float64
	positions  map[uint32]int
}

func newHandleHeap() *handleHeap {
	return &handleHeap{
		positions: make(map[uint32]int),
	}
}

func (h *handleHeap) Len() int {
	return len(h.handles)
}

func (h *handleHeap) Contains(handle uint32) bool {
	_, ok := h.positions[handle]
	return ok
}

func (h *handleHeap) Priority(handle uint32) (float64, bool) {
	i, ok := h.positions[handle]
	if !ok {
		return 0, false
	}
	return h.priorities[i], true
}

func (h *handleHeap) Push(handle uint32, priority float64) {
	if _, ok := h.positions[handle]; ok {
		h.Remove(handle)
	}

	h.handles = append(h.handles, handle)
	h.priorities = append(h.priorities, priority)
	h.positions[handle] = len(h.handles) - 1
	h.siftUp(len(h.handles) - 1)
}

// Pop removes and returns the handle with the lowest priority.
func (h *handleHeap) Pop() (uint32, float64, bool) {
	if len(h.handles) == 0 {
		return 0, 0, false
	}

	handle := h.handles[0]
	priority := h.priorities[0]
	h.removeAt(0)
	return handle, priority, true
}

func (h *handleHeap) Remove(handle uint32) bool {
	i, ok := h.positions[handle]
	if !ok {
		return false
	}
	h.removeAt(i)
	return true
}

func (h *handleHeap) removeAt(i int) {
	last := len(h.handles) - 1
	delete(h.positions, h.handles[i])

	if i != last {
		h.swap(i, last)
	}
	h.handles = h.handles[:last]
	h.priorities = h.priorities[:last]

	if i < last {
		h.siftDown(i)
		h.siftUp(i)
	}
}

func (h *handleHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.priorities[parent] <= h.priorities[i] {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *handleHeap) siftDown(i int) {
	for {
		smallest := i
		if l := 2*i + 1; l < len(h.handles) && h.priorities[l] < h.priorities[smallest] {
			smallest = l
		}
		if r := 2*i + 2; r < len(h.handles) && h.priorities[r] < h.priorities[smallest] {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *handleHeap) swap(i int, j int) {
	h.handles[i], h.handles[j] = h.handles[j], h.handles[i]
	h.priorities[i], h.priorities[j] = h.priorities[j], h.priorities[i]
	h.positions[h.handles[i]] = i
	h.positions[h.handles[j]] = j
}
