package fault

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rfnode/rfnode.go/pkg/wire"
)

func TestReportAndSnapshot(t *testing.T) {
	var m Monitor
	m.Report(Overrun, 10)
	m.Report(Overrun, 20)
	m.Report(QueueFull, 30)

	s := m.Snapshot()
	require.Equal(t, Counter{Count: 2, LastTick: 20}, s[Overrun])
	require.Equal(t, Counter{Count: 1, LastTick: 30}, s[QueueFull])
	require.Equal(t, Counter{}, s[Underrun])
	require.Equal(t, uint32(2), m.Count(Overrun))
}

func TestSaturation(t *testing.T) {
	var m Monitor
	max := ^uint32(0)
	m.counts[MalformedFrame] = max - 1
	m.Report(MalformedFrame, 1)
	require.Equal(t, max, m.Count(MalformedFrame))
	// Saturated: never wraps back to zero.
	m.Report(MalformedFrame, 2)
	require.Equal(t, max, m.Count(MalformedFrame))
	require.Equal(t, uint64(2), m.Snapshot()[MalformedFrame].LastTick)
}

func TestConcurrentReports(t *testing.T) {
	var m Monitor
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Report(Overrun, uint64(j))
			}
		}()
	}
	wg.Wait()
	require.Equal(t, uint32(8000), m.Count(Overrun))
}

func TestKindsMatchWireReport(t *testing.T) {
	require.Equal(t, wire.NumFaultKinds, int(NumKinds))

	var m Monitor
	m.Report(PeripheralError, 5)
	counters := m.Snapshot().WireCounters()
	require.Equal(t, wire.FaultCounter{Count: 1, LastTick: 5}, counters[PeripheralError])
}
