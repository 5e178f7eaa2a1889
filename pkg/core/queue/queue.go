// Package queue provides the bounded frame queues crossing the boundary
// between the acquisition-side and transport-side contexts.
package queue

import (
	"sync/atomic"

	"github.com/rfnode/rfnode.go/pkg/wire"
)

// Queue is a bounded wait-free single-producer/single-consumer ring of
// encoded frames. Exactly one goroutine pushes and exactly one pops;
// neither ever blocks the other. Storage is allocated once at
// construction and frames move by value.
type Queue struct {
	slots []wire.Raw
	head  uint32 // next slot to pop, advanced only by the consumer
	tail  uint32 // next slot to push, advanced only by the producer
}

// New creates a queue holding up to capacity frames. One extra slot
// backs the ring so full and empty remain distinguishable.
func New(capacity int) *Queue {
	return &Queue{slots: make([]wire.Raw, capacity+1)}
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.slots) - 1
}

// Len returns the number of frames currently queued.
func (q *Queue) Len() int {
	n := uint32(len(q.slots))
	head := atomic.LoadUint32(&q.head)
	tail := atomic.LoadUint32(&q.tail)
	return int((tail + n - head) % n)
}

// Push copies a frame in. A false return means the queue is full; the
// caller must treat it as a drop and count it, freshness wins over
// delivery.
func (q *Queue) Push(f *wire.Raw) bool {
	tail := atomic.LoadUint32(&q.tail)
	next := (tail + 1) % uint32(len(q.slots))
	if next == atomic.LoadUint32(&q.head) {
		return false
	}
	q.slots[tail] = *f
	atomic.StoreUint32(&q.tail, next)
	return true
}

// Pop copies the oldest frame into out, preserving push order.
func (q *Queue) Pop(out *wire.Raw) bool {
	head := atomic.LoadUint32(&q.head)
	if head == atomic.LoadUint32(&q.tail) {
		return false
	}
	*out = q.slots[head]
	atomic.StoreUint32(&q.head, (head+1)%uint32(len(q.slots)))
	return true
}
