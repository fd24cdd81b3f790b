// Package queue provides the fixed-capacity work queues and indirect arguments shared by the
// culling and rasterization stages. Every allocation is an atomic bump of a tail counter into
// a pre-sized array; an append past capacity is skipped and counted, never grown.
package queue

import "sync/atomic"

// Queue is a fixed-capacity append-only work list written concurrently by many invocations.
type Queue[T any] struct {
	items   []T
	tail    atomic.Uint32
	dropped atomic.Uint32
}

// NewQueue allocates a queue holding at most capacity items.
func NewQueue[T any](capacity uint32) *Queue[T] {
	return &Queue[T]{items: make([]T, capacity)}
}

// Push bump-allocates a slot and stores v in it.
//
// Parameters:
//   - v: the item to append
//
// Returns:
//   - uint32: the slot index
//   - bool: false if the queue was full and the item was dropped
func (q *Queue[T]) Push(v T) (uint32, bool) {
	idx := q.tail.Add(1) - 1
	if idx >= uint32(len(q.items)) {
		q.dropped.Add(1)
		return idx, false
	}
	q.items[idx] = v
	return idx, true
}

// PushCounted appends v and bumps the X workgroup count of args whenever the slot opens a new
// workgroup of groupSize invocations, so args always dispatches enough groups for the queue.
//
// Parameters:
//   - v: the item to append
//   - args: the indirect dispatch arguments consuming this queue
//   - groupSize: invocations per workgroup of the consuming stage
//
// Returns:
//   - bool: false if the item was dropped
func (q *Queue[T]) PushCounted(v T, args *DispatchArgs, groupSize uint32) bool {
	idx, ok := q.Push(v)
	if ok && idx%groupSize == 0 {
		args.X.Add(1)
	}
	return ok
}

// Len returns the number of live items.
func (q *Queue[T]) Len() uint32 {
	return min(q.tail.Load(), uint32(len(q.items)))
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() uint32 {
	return uint32(len(q.items))
}

// At returns the item in slot i. The caller bounds-checks against Len.
func (q *Queue[T]) At(i uint32) T {
	return q.items[i]
}

// Items returns the live items. The slice aliases the queue storage.
func (q *Queue[T]) Items() []T {
	return q.items[:q.Len()]
}

// Dropped returns the number of appends skipped since the last Reset.
func (q *Queue[T]) Dropped() uint32 {
	return q.dropped.Load()
}

// Reset empties the queue. Not safe while pushes are in flight.
func (q *Queue[T]) Reset() {
	q.tail.Store(0)
	q.dropped.Store(0)
}

// Swap exchanges the contents of two queues of equal capacity. Used to ping-pong per-level queues.
func (q *Queue[T]) Swap(o *Queue[T]) {
	q.items, o.items = o.items, q.items
	qt, ot := q.tail.Load(), o.tail.Load()
	q.tail.Store(ot)
	o.tail.Store(qt)
	qd, od := q.dropped.Load(), o.dropped.Load()
	q.dropped.Store(od)
	o.dropped.Store(qd)
}
