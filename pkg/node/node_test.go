package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfnode/rfnode.go/pkg/core/config"
	"github.com/rfnode/rfnode.go/pkg/core/fault"
	fx "github.com/rfnode/rfnode.go/pkg/framework"
	"github.com/rfnode/rfnode.go/pkg/sim"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

// ctlCtx is a minimal ControlContext for driving controllers directly.
type ctlCtx struct {
	now time.Time
}

func (c *ctlCtx) Time() time.Time                      { return c.now }
func (c *ctlCtx) Context() context.Context             { return context.Background() }
func (c *ctlCtx) PriorityLevel() int                   { return 0 }
func (c *ctlCtx) Events() fx.EventStore                { return nil }
func (c *ctlCtx) PostRun(...fx.Controller)             {}
func (c *ctlCtx) PreRunAt(int, ...fx.Controller)       {}
func (c *ctlCtx) PostRunAt(int, ...fx.Controller)      {}
func (c *ctlCtx) PostEvent(fx.Event)                   {}
func (c *ctlCtx) TriggerNext()                         {}

func newTestNode(t *testing.T) *Node {
	n, err := New(Info{Ref: Ref{Type: "digitizer", ID: "test"}}, sim.New(), config.Defaults)
	require.NoError(t, err)
	return n
}

type recordingLink struct {
	frames []wire.Raw
	err    error
}

func (l *recordingLink) ReadFrame(*wire.Raw) error { select {} }
func (l *recordingLink) WriteFrame(f *wire.Raw) error {
	if l.err != nil {
		return l.err
	}
	l.frames = append(l.frames, *f)
	return nil
}

func TestNodeDrainFansOut(t *testing.T) {
	n := newTestNode(t)
	a, b := &recordingLink{}, &recordingLink{}
	n.AddLink(a).AddLink(b)

	var raw wire.Raw
	require.NoError(t, wire.EncodeMessage(&wire.Telemetry{Seq: 1}, &raw))
	require.True(t, n.Out.Push(&raw))
	require.NoError(t, wire.EncodeMessage(&wire.Telemetry{Seq: 2}, &raw))
	require.True(t, n.Out.Push(&raw))

	require.NoError(t, n.drain(&ctlCtx{}))
	assert.Equal(t, 0, n.Out.Len())
	assert.Len(t, a.frames, 2)
	assert.Len(t, b.frames, 2)
}

func TestNodeDrainSurvivesLinkFailure(t *testing.T) {
	n := newTestNode(t)
	bad := &recordingLink{err: errors.New("link down")}
	good := &recordingLink{}
	n.AddLink(bad).AddLink(good)

	var raw wire.Raw
	require.NoError(t, wire.EncodeMessage(&wire.Telemetry{Seq: 1}, &raw))
	require.True(t, n.Out.Push(&raw))
	require.NoError(t, n.drain(&ctlCtx{}))
	assert.Len(t, good.frames, 1, "one dead link must not starve the rest")
}

func popFaultReport(t *testing.T, n *Node) *wire.FaultReport {
	var raw wire.Raw
	require.True(t, n.Out.Pop(&raw), "expected a fault report")
	frame, _, err := wire.Decode(raw.Bytes())
	require.NoError(t, err)
	msg, err := wire.DecodeMessage(frame)
	require.NoError(t, err)
	report, ok := msg.(*wire.FaultReport)
	require.True(t, ok)
	return report
}

func TestNodeReportsOnInterval(t *testing.T) {
	n := newTestNode(t)
	n.Faults.Report(fault.Overrun, 100)

	start := time.Now()
	cc := &ctlCtx{now: start}
	require.NoError(t, n.report(cc))
	assert.Equal(t, 0, n.Out.Len(), "first sighting only arms the timer")

	cc.now = start.Add(200 * time.Millisecond)
	require.NoError(t, n.report(cc))
	assert.Equal(t, 0, n.Out.Len(), "interval not elapsed yet")

	cc.now = start.Add(1100 * time.Millisecond)
	require.NoError(t, n.report(cc))
	report := popFaultReport(t, n)
	assert.Equal(t, uint32(0), report.Seq)
	assert.Equal(t, uint32(1), report.Counters[int(fault.Overrun)].Count)
	assert.Equal(t, uint64(100), report.Counters[int(fault.Overrun)].LastTick)

	// A second period with no fresh records is an underrun, included in
	// the report it rides in.
	cc.now = cc.now.Add(1100 * time.Millisecond)
	require.NoError(t, n.report(cc))
	report = popFaultReport(t, n)
	assert.Equal(t, uint32(1), report.Seq)
	assert.Equal(t, uint32(2), report.Counters[int(fault.Underrun)].Count)
}

type scriptedReader struct {
	frames chan wire.Raw
	errs   chan error
}

func (r *scriptedReader) ReadFrame(out *wire.Raw) error {
	select {
	case f, ok := <-r.frames:
		if !ok {
			return errors.New("closed")
		}
		*out = f
		return nil
	case err := <-r.errs:
		return err
	}
}

func TestLinkReaderQueuesAndCounts(t *testing.T) {
	n := newTestNode(t)
	src := &scriptedReader{frames: make(chan wire.Raw, 8), errs: make(chan error, 8)}
	reader := &linkReader{node: n, rw: src}
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- reader.Run(ctx) }()

	var raw wire.Raw
	require.NoError(t, wire.EncodeMessage(&wire.Command{Seq: 1, Mask: wire.MaskGain, Gain: 2}, &raw))
	src.frames <- raw
	src.errs <- wire.ErrIntegrity

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.In.Len() == 1 && n.Faults.Count(fault.MalformedFrame) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, n.In.Len())
	assert.Equal(t, uint32(1), n.Faults.Count(fault.MalformedFrame))

	cancel()
	src.errs <- errors.New("unblock")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop")
	}
}

func TestLinkReadersShareInboundQueue(t *testing.T) {
	n := newTestNode(t)
	const readers, perReader = 2, 4
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		src := &scriptedReader{frames: make(chan wire.Raw, perReader), errs: make(chan error, 1)}
		for j := 0; j < perReader; j++ {
			var raw wire.Raw
			seq := uint32(i*perReader + j)
			require.NoError(t, wire.EncodeMessage(&wire.Command{Seq: seq, Mask: wire.MaskGain, Gain: 1}, &raw))
			src.frames <- raw
		}
		close(src.frames)
		wg.Add(1)
		go func(src *scriptedReader) {
			defer wg.Done()
			(&linkReader{node: n, rw: src}).Run(ctx)
		}(src)
	}
	wg.Wait()

	accepted := n.In.Len()
	dropped := int(n.Faults.Count(fault.QueueFull))
	assert.Equal(t, readers*perReader, accepted+dropped,
		"concurrent readers must not lose frames: each one is queued or counted")
}
