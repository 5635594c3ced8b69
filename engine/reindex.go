package engine

import "time"

// reindexQueue decouples "object moved" from "object's voxel membership
// updated". Objects with pending membership deltas wait here, ranked by
// Manhattan distance to the camera so nearby, more impactful objects are
// reconciled first.
type reindexQueue struct {
	heap *handleHeap
	now  func() time.Time
}

func newReindexQueue(now func() time.Time) *reindexQueue {
	return &reindexQueue{
		heap: newHandleHeap(),
		now:  now,
	}
}

// Enqueue queues the handle at the given priority. A handle already queued is
// re-queued at the new priority; there is never more than one live entry per
// handle.
func (q *reindexQueue) Enqueue(handle uint32, priority float64) {
	q.heap.Push(handle, priority)
}

func (q *reindexQueue) Remove(handle uint32) {
	q.heap.Remove(handle)
}

func (q *reindexQueue) Len() int {
	return q.heap.Len()
}

// Drain dequeues entries in priority order and applies each through apply
// until the queue empties or the elapsed wall time exceeds budget. The
// elapsed time is checked at entry boundaries only; a delta set is always
// applied whole. Undrained entries stay queued for the next call, so no
// object is ever dropped, but sustained excess movement grows the backlog.
//
// Drain returns the number of entries applied.
func (q *reindexQueue) Drain(budget time.Duration, apply func(handle uint32)) int {
	start := q.now()

	var applied int
	for q.heap.Len() != 0 {
		handle, _, _ := q.heap.Pop()
		apply(handle)
		applied++

		if q.now().Sub(start) > budget {
			break
		}
	}
	return applied
}
