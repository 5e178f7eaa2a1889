// Package fault aggregates bounded-severity fault conditions into
// saturating counters instead of propagating errors without bound.
package fault

import (
	"sync/atomic"

	"github.com/rfnode/rfnode.go/pkg/wire"
)

// Kind identifies a fault condition.
type Kind uint8

// Fault kinds. PeripheralError is the only kind classified fatal; the
// acquisition engine answers it with a controlled restart.
const (
	Overrun Kind = iota
	Underrun
	MalformedFrame
	PeripheralError
	EncodingTooLarge
	QueueFull

	NumKinds
)

// String returns a display name for the kind.
func (k Kind) String() string {
	switch k {
	case Overrun:
		return "overrun"
	case Underrun:
		return "underrun"
	case MalformedFrame:
		return "malformed-frame"
	case PeripheralError:
		return "peripheral-error"
	case EncodingTooLarge:
		return "encoding-too-large"
	case QueueFull:
		return "queue-full"
	}
	return "unknown"
}

// Counter is the value of one fault kind at snapshot time.
type Counter struct {
	Count    uint32
	LastTick uint64
}

// Snapshot is a read-only copy of all counters, indexed by Kind.
type Snapshot [NumKinds]Counter

// WireCounters converts the snapshot for a FaultReport frame.
func (s Snapshot) WireCounters() (out [wire.NumFaultKinds]wire.FaultCounter) {
	for i, c := range s {
		out[i] = wire.FaultCounter{Count: c.Count, LastTick: c.LastTick}
	}
	return
}

// Monitor keeps one saturating counter and last-occurrence tick per kind.
// Report is safe from any context; counters saturate at the maximum value
// rather than wrapping to zero.
type Monitor struct {
	counts [NumKinds]uint32
	ticks  [NumKinds]uint64
}

// Report counts one occurrence of the kind at the given sample-clock tick.
func (m *Monitor) Report(k Kind, tick uint64) {
	for {
		c := atomic.LoadUint32(&m.counts[k])
		if c == ^uint32(0) {
			break
		}
		if atomic.CompareAndSwapUint32(&m.counts[k], c, c+1) {
			break
		}
	}
	atomic.StoreUint64(&m.ticks[k], tick)
}

// Count returns the current count of one kind.
func (m *Monitor) Count(k Kind) uint32 {
	return atomic.LoadUint32(&m.counts[k])
}

// Snapshot copies all counters for inclusion in periodic telemetry.
func (m *Monitor) Snapshot() (s Snapshot) {
	for k := Kind(0); k < NumKinds; k++ {
		s[k] = Counter{
			Count:    atomic.LoadUint32(&m.counts[k]),
			LastTick: atomic.LoadUint64(&m.ticks[k]),
		}
	}
	return
}
