package ring

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const (
	// DefaultSlotCount is the number of preallocated slots.
	DefaultSlotCount = 1000
	// DefaultSlotSize is the capacity of each slot in bytes.
	DefaultSlotSize = 2048
)

var ErrBadSize = errors.New("ring: slot count and size must be positive")

// Ring is a bounded single-producer/single-consumer ring of preallocated
// byte slots. The producer accumulates bytes into the head slot and commits;
// a commit against a full ring drops the slot contents and counts an overrun
// instead of blocking. The consumer blocks in Pop until a slot is committed
// or the ring is closed.
//
// Only one goroutine may produce and only one may consume. Counter reads are
// safe from any goroutine.
type Ring struct {
	mtx   sync.Mutex
	ready *sync.Cond

	slots  [][]byte
	head   int // next producer slot
	tail   int // last consumed slot
	closed bool

	overruns   atomic.Int64
	processed  atomic.Int64
	queueBlock atomic.Int64

	depth prometheus.Gauge
}

// New allocates a ring of count slots of size bytes each. depth, if non-nil,
// tracks the number of committed slots awaiting the consumer.
func New(count, size int, depth prometheus.Gauge) (*Ring, error) {
	if count <= 0 || size <= 0 {
		return nil, ErrBadSize
	}

	r := &Ring{
		slots: make([][]byte, count),
		head:  0,
		tail:  count - 1,
		depth: depth,
	}
	for i := range r.slots {
		r.slots[i] = make([]byte, 0, size)
	}
	r.ready = sync.NewCond(&r.mtx)

	return r, nil
}

// Head returns the bytes accumulated so far in the current head slot.
func (r *Ring) Head() []byte {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.slots[r.head]
}

// Append adds b to the head slot. It returns false, leaving the slot
// untouched, if the slot's capacity would be exceeded.
func (r *Ring) Append(b []byte) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	s := r.slots[r.head]
	if len(s)+len(b) > cap(s) {
		return false
	}
	r.slots[r.head] = append(s, b...)
	return true
}

// ResetHead discards the bytes accumulated in the head slot.
func (r *Ring) ResetHead() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.slots[r.head] = r.slots[r.head][:0]
}

// Commit completes the head slot. If the ring is full the slot is recycled in
// place for the next message, the overrun counter is incremented and Commit
// returns false. The producer never blocks here.
func (r *Ring) Commit() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	next := (r.head + 1) % len(r.slots)
	if next == r.tail {
		r.overruns.Inc()
		r.slots[r.head] = r.slots[r.head][:0]
		return false
	}

	r.head = next
	if r.depth != nil {
		r.depth.Set(float64(r.inUse()))
	}
	r.ready.Broadcast()
	return true
}

// Pop blocks until a committed slot is available and returns its contents.
// The returned slice is only valid until the next Pop. ok is false once the
// ring has been closed; remaining slots are not drained.
func (r *Ring) Pop() (b []byte, ok bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	next := (r.tail + 1) % len(r.slots)
	for next == r.head && !r.closed {
		r.queueBlock.Inc()
		r.ready.Wait()
		next = (r.tail + 1) % len(r.slots)
	}
	if r.closed {
		return nil, false
	}

	r.slots[r.tail] = r.slots[r.tail][:0]
	r.tail = next
	r.processed.Inc()
	if r.depth != nil {
		r.depth.Set(float64(r.inUse()))
	}

	return r.slots[r.tail], true
}

// Close wakes any blocked consumer and makes all subsequent Pops return
// immediately.
func (r *Ring) Close() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.closed = true
	r.ready.Broadcast()
}

// Free reports how many slots the producer can still commit without an
// overrun.
func (r *Ring) Free() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.slots) - ((r.head - r.tail + len(r.slots)) % len(r.slots)) - 1
}

// InUse reports the number of committed slots awaiting the consumer.
func (r *Ring) InUse() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.inUse()
}

func (r *Ring) inUse() int {
	return (r.head-r.tail+len(r.slots))%len(r.slots) - 1
}

// Capacity returns the slot count.
func (r *Ring) Capacity() int {
	return len(r.slots)
}

func (r *Ring) Overruns() int64 { return r.overruns.Load() }

func (r *Ring) Processed() int64 { return r.processed.Load() }

// QueueBlocks counts how many times the consumer had to wait for a commit.
func (r *Ring) QueueBlocks() int64 { return r.queueBlock.Load() }
