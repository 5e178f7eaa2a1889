// Package pool manages the fixed arena of raw sample buffers handed
// between the acquisition and processing contexts.
package pool

import (
	"fmt"
	"sync"
)

// Sample is one raw value captured from the RF front end.
type Sample int16

// Default arena dimensions.
const (
	DefaultBuffers       = 4
	DefaultBufferSamples = 1024
)

// State is the ownership tag of one buffer slot. A slot cycles
// Free → Filling → Filled → Processing → Free, single direction, for the
// lifetime of the process.
type State uint8

// Slot states.
const (
	Free State = iota
	Filling
	Filled
	Processing
)

// String returns a display name for the state.
func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Filling:
		return "filling"
	case Filled:
		return "filled"
	case Processing:
		return "processing"
	}
	return "invalid"
}

// Handle is the index of a slot. Buffers cross context boundaries only as
// handles, never as shared pointers.
type Handle int

type slot struct {
	state    State
	seq      uint32
	tick     uint64
	n        int
	degraded bool
	samples  []Sample
}

// Pool is the buffer arena. All storage is allocated once at construction
// and cycles forever. The mutex guards only the state-tag transitions and
// the fill-order ring; it is never held across a fill or a reduction.
type Pool struct {
	mu      sync.Mutex
	slots   []slot
	fillSeq uint32

	// filled is a fixed ring of slot handles in fill order, so the
	// processing side always takes the oldest filled buffer first.
	filled []Handle
	head   int
	count  int

	releaseCh chan struct{}
}

// New creates a pool of buffers equally sized buffers of samples each.
func New(buffers, samples int) *Pool {
	p := &Pool{
		slots:     make([]slot, buffers),
		filled:    make([]Handle, buffers),
		releaseCh: make(chan struct{}, 1),
	}
	backing := make([]Sample, buffers*samples)
	for i := range p.slots {
		p.slots[i].samples = backing[i*samples : (i+1)*samples]
	}
	return p
}

// Buffers returns the pool capacity.
func (p *Pool) Buffers() int {
	return len(p.slots)
}

// AcquireFree transfers ownership of one Free buffer to the caller,
// transitioning it to Filling. The false return is the overrun signal:
// the caller reports it to the fault monitor, it is never silent.
func (p *Pool) AcquireFree() (Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if p.slots[i].state == Free {
			p.slots[i].state = Filling
			return Handle(i), true
		}
	}
	return 0, false
}

// Samples exposes the full-capacity sample storage of a slot for filling.
// Only the current owner of the handle may call it.
func (p *Pool) Samples(h Handle) []Sample {
	return p.slots[h].samples
}

// MarkFilled transitions Filling → Filled, stamping the fill sequence,
// the sample-clock tick and the fill length. Callable only from the
// acquisition context that owns the handle.
func (p *Pool) MarkFilled(h Handle, n int, tick uint64, degraded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.slots[h]
	p.mustBe(h, Filling)
	s.state = Filled
	s.seq = p.fillSeq
	p.fillSeq++
	s.tick = tick
	s.n = n
	s.degraded = degraded
	p.filled[(p.head+p.count)%len(p.filled)] = h
	p.count++
}

// Cancel transitions Filling → Free when a transfer aborts before
// completing, so the slot does not leak out of rotation.
func (p *Pool) Cancel(h Handle) {
	p.mu.Lock()
	p.mustBe(h, Filling)
	p.slots[h].state = Free
	p.mu.Unlock()
	p.signalRelease()
}

// TakeOldestFilled transitions the oldest Filled buffer to Processing,
// preserving fill order across buffers.
func (p *Pool) TakeOldestFilled() (Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		return 0, false
	}
	h := p.filled[p.head]
	p.head = (p.head + 1) % len(p.filled)
	p.count--
	p.mustBe(h, Filled)
	p.slots[h].state = Processing
	return h, true
}

// Release returns a Processing buffer to Free and wakes a stalled
// acquisition context, if any.
func (p *Pool) Release(h Handle) {
	p.mu.Lock()
	p.mustBe(h, Processing)
	p.slots[h].state = Free
	p.mu.Unlock()
	p.signalRelease()
}

// Released signals whenever a buffer returns to Free. The channel holds at
// most one pending notification.
func (p *Pool) Released() <-chan struct{} {
	return p.releaseCh
}

// Data returns the filled portion of a buffer. Only the current owner of
// the handle may call it.
func (p *Pool) Data(h Handle) []Sample {
	return p.slots[h].samples[:p.slots[h].n]
}

// Seq returns the fill sequence stamped at MarkFilled.
func (p *Pool) Seq(h Handle) uint32 {
	return p.slots[h].seq
}

// Tick returns the sample-clock tick stamped at MarkFilled.
func (p *Pool) Tick(h Handle) uint64 {
	return p.slots[h].tick
}

// Degraded reports whether the buffer was marked anomalous at fill time.
func (p *Pool) Degraded(h Handle) bool {
	return p.slots[h].degraded
}

// FilledCount returns the number of buffers awaiting processing.
func (p *Pool) FilledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// InFlight returns the number of buffers in any non-Free state. It never
// exceeds the pool capacity.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.slots {
		if p.slots[i].state != Free {
			n++
		}
	}
	return n
}

func (p *Pool) signalRelease() {
	select {
	case p.releaseCh <- struct{}{}:
	default:
	}
}

// mustBe asserts the single-writer ownership discipline. A violation is a
// programming error in a caller, not a runtime condition.
func (p *Pool) mustBe(h Handle, want State) {
	if got := p.slots[h].state; got != want {
		panic(fmt.Sprintf("pool: buffer %d is %v, want %v", h, got, want))
	}
}
