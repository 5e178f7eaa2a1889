package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	p := New(2, 8)
	require.Equal(t, 2, p.Buffers())
	require.Equal(t, 0, p.InFlight())

	h, ok := p.AcquireFree()
	require.True(t, ok)
	require.Len(t, p.Samples(h), 8)
	require.Equal(t, 1, p.InFlight())

	p.MarkFilled(h, 8, 100, false)
	require.Equal(t, 1, p.FilledCount())

	got, ok := p.TakeOldestFilled()
	require.True(t, ok)
	require.Equal(t, h, got)
	require.Equal(t, uint32(0), p.Seq(got))
	require.Equal(t, uint64(100), p.Tick(got))
	require.False(t, p.Degraded(got))
	require.Len(t, p.Data(got), 8)

	p.Release(got)
	require.Equal(t, 0, p.InFlight())
}

func TestFIFOOrderAcrossBuffers(t *testing.T) {
	p := New(3, 4)
	var handles []Handle
	for i := 0; i < 3; i++ {
		h, ok := p.AcquireFree()
		require.True(t, ok)
		p.MarkFilled(h, 4, uint64(i), false)
		handles = append(handles, h)
	}
	for i := 0; i < 3; i++ {
		h, ok := p.TakeOldestFilled()
		require.True(t, ok)
		require.Equal(t, handles[i], h)
		require.Equal(t, uint32(i), p.Seq(h))
		p.Release(h)
	}
	_, ok := p.TakeOldestFilled()
	require.False(t, ok)
}

func TestInFlightNeverExceedsCapacity(t *testing.T) {
	p := New(2, 4)
	a, ok := p.AcquireFree()
	require.True(t, ok)
	b, ok := p.AcquireFree()
	require.True(t, ok)
	require.Equal(t, 2, p.InFlight())

	// Exhausted: the overrun signal, no blocking.
	_, ok = p.AcquireFree()
	require.False(t, ok)

	p.MarkFilled(a, 4, 0, false)
	p.MarkFilled(b, 4, 1, false)
	_, ok = p.AcquireFree()
	require.False(t, ok)
	require.Equal(t, 2, p.InFlight())

	h, ok := p.TakeOldestFilled()
	require.True(t, ok)
	require.Equal(t, 2, p.InFlight())
	p.Release(h)
	require.Equal(t, 1, p.InFlight())

	_, ok = p.AcquireFree()
	require.True(t, ok)
}

func TestCancelReturnsBufferToRotation(t *testing.T) {
	p := New(1, 4)
	h, ok := p.AcquireFree()
	require.True(t, ok)
	_, ok = p.AcquireFree()
	require.False(t, ok)

	p.Cancel(h)
	require.Equal(t, 0, p.InFlight())
	_, ok = p.AcquireFree()
	require.True(t, ok)
}

func TestReleaseSignal(t *testing.T) {
	p := New(1, 4)
	h, _ := p.AcquireFree()
	p.MarkFilled(h, 4, 0, false)
	h, _ = p.TakeOldestFilled()

	select {
	case <-p.Released():
		t.Fatal("no release happened yet")
	default:
	}

	p.Release(h)
	select {
	case <-p.Released():
	default:
		t.Fatal("release not signalled")
	}
}

func TestDegradedStamp(t *testing.T) {
	p := New(2, 4)
	h, _ := p.AcquireFree()
	p.MarkFilled(h, 2, 7, true)
	h, ok := p.TakeOldestFilled()
	require.True(t, ok)
	require.True(t, p.Degraded(h))
	require.Len(t, p.Data(h), 2)
}

func TestWrongTransitionPanics(t *testing.T) {
	p := New(1, 4)
	h, _ := p.AcquireFree()
	require.Panics(t, func() { p.Release(h) })
}
