package queue

import "sync/atomic"

// SplitBuffer is one fixed array shared by two producers growing from opposite ends:
// the left end fills slots 0, 1, 2, ... and the right end fills cap-1, cap-2, ....
// A shared reservation counter keeps the two ends from ever overlapping.
type SplitBuffer[T any] struct {
	items    []T
	reserved atomic.Uint32
	left     atomic.Uint32
	right    atomic.Uint32
	dropped  atomic.Uint32
}

// NewSplitBuffer allocates a split buffer of the given total capacity.
func NewSplitBuffer[T any](capacity uint32) *SplitBuffer[T] {
	return &SplitBuffer[T]{items: make([]T, capacity)}
}

// reserve claims one slot of the shared capacity.
func (s *SplitBuffer[T]) reserve() bool {
	if s.reserved.Add(1) > uint32(len(s.items)) {
		s.dropped.Add(1)
		return false
	}
	return true
}

// PushLeft appends v to the left end.
//
// Returns:
//   - uint32: the physical slot index
//   - bool: false if the buffer was full and the item was dropped
func (s *SplitBuffer[T]) PushLeft(v T) (uint32, bool) {
	if !s.reserve() {
		return 0, false
	}
	slot := s.left.Add(1) - 1
	s.items[slot] = v
	return slot, true
}

// PushRight appends v to the right end.
//
// Returns:
//   - uint32: the physical slot index
//   - bool: false if the buffer was full and the item was dropped
func (s *SplitBuffer[T]) PushRight(v T) (uint32, bool) {
	if !s.reserve() {
		return 0, false
	}
	slot := s.RightSlot(s.right.Add(1) - 1)
	s.items[slot] = v
	return slot, true
}

// PushLeftCounted appends v to the left end and bumps args.X whenever the item opens a
// new workgroup of groupSize invocations.
func (s *SplitBuffer[T]) PushLeftCounted(v T, args *DispatchArgs, groupSize uint32) bool {
	slot, ok := s.PushLeft(v)
	if ok && slot%groupSize == 0 {
		args.X.Add(1)
	}
	return ok
}

// PushRightCounted appends v to the right end and bumps args.X whenever the item opens a
// new workgroup of groupSize invocations. Right-end items are counted from the right edge.
func (s *SplitBuffer[T]) PushRightCounted(v T, args *DispatchArgs, groupSize uint32) bool {
	slot, ok := s.PushRight(v)
	if ok && s.RightSlot(slot)%groupSize == 0 {
		args.X.Add(1)
	}
	return ok
}

// LeftLen returns the number of items appended to the left end.
func (s *SplitBuffer[T]) LeftLen() uint32 { return s.left.Load() }

// RightLen returns the number of items appended to the right end.
func (s *SplitBuffer[T]) RightLen() uint32 { return s.right.Load() }

// RightSlot converts the i-th right-end item to its physical slot.
func (s *SplitBuffer[T]) RightSlot(i uint32) uint32 {
	return uint32(len(s.items)) - 1 - i
}

// Slot returns the item stored in a physical slot.
func (s *SplitBuffer[T]) Slot(slot uint32) T {
	return s.items[slot]
}

// Cap returns the shared capacity of both ends.
func (s *SplitBuffer[T]) Cap() uint32 {
	return uint32(len(s.items))
}

// Dropped returns the number of appends skipped since the last Reset.
func (s *SplitBuffer[T]) Dropped() uint32 {
	return s.dropped.Load()
}

// Reset empties both ends. Not safe while pushes are in flight.
func (s *SplitBuffer[T]) Reset() {
	s.reserved.Store(0)
	s.left.Store(0)
	s.right.Store(0)
	s.dropped.Store(0)
}
