package world

import (
	"runtime"
	"sync/atomic"
)

// cacheLineSize is the typical CPU cache line size (64 bytes on x86-64).
const cacheLineSize = 64

// padding keeps producer and consumer cursors on separate cache lines.
type padding [cacheLineSize]byte

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// Queue is a bounded lock-free MPSC ring buffer. Any number of goroutines
// may push; exactly one goroutine (the world tick) pops.
//
// Each slot carries a sequence number so a consumer never observes a slot
// whose producer has claimed it but not finished writing.
//
// Memory layout:
// [padding][head][padding][tail][padding][mask, slots...]
type Queue[T any] struct {
	_pad0 padding

	head  atomic.Uint64 // next position to claim (producers)
	_pad1 padding

	tail  atomic.Uint64 // next position to read (consumer)
	_pad2 padding

	mask  uint64
	slots []slot[T]
}

// NewQueue creates a queue. capacity is rounded up to a power of two.
func NewQueue[T any](capacity int) *Queue[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}
	q := &Queue[T]{
		mask:  uint64(n - 1),
		slots: make([]slot[T], n),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds an item. It returns false if the queue is full.
// Safe for multiple concurrent producers.
func (q *Queue[T]) TryPush(item T) bool {
	for {
		head := q.head.Load()
		s := &q.slots[head&q.mask]
		seq := s.seq.Load()

		switch diff := int64(seq) - int64(head); {
		case diff == 0:
			if q.head.CompareAndSwap(head, head+1) {
				s.val = item
				s.seq.Store(head + 1) // publish to the consumer
				return true
			}
		case diff < 0:
			return false // full: the consumer has not freed this slot yet
		}

		// Another producer won the slot, retry.
		runtime.Gosched()
	}
}

// TryPop removes the oldest item. Only the single consumer may call it.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T

	tail := q.tail.Load()
	s := &q.slots[tail&q.mask]
	if s.seq.Load() != tail+1 {
		return zero, false // empty, or the producer is mid-write
	}

	item := s.val
	s.val = zero
	s.seq.Store(tail + q.mask + 1)
	q.tail.Store(tail + 1)
	return item, true
}

// DrainTo pops into buf until it is full or the queue is empty and returns
// the number of items written.
func (q *Queue[T]) DrainTo(buf []T) int {
	count := 0
	for count < len(buf) {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		buf[count] = item
		count++
	}
	return count
}

// Len returns the approximate number of queued items.
func (q *Queue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return int(q.mask + 1)
}
