package host

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfnode/rfnode.go/pkg/node"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

type chanLink struct {
	in  chan wire.Raw
	out chan wire.Raw
}

func newChanLink() *chanLink {
	return &chanLink{in: make(chan wire.Raw, 8), out: make(chan wire.Raw, 8)}
}

func (l *chanLink) ReadFrame(out *wire.Raw) error {
	f, ok := <-l.in
	if !ok {
		return io.EOF
	}
	*out = f
	return nil
}

func (l *chanLink) WriteFrame(f *wire.Raw) error {
	l.out <- *f
	return nil
}

func (l *chanLink) deliver(t *testing.T, msg wire.Message) {
	var raw wire.Raw
	require.NoError(t, wire.EncodeMessage(msg, &raw))
	l.in <- raw
}

func (l *chanLink) sentCommand(t *testing.T) *wire.Command {
	select {
	case raw := <-l.out:
		frame, _, err := wire.Decode(raw.Bytes())
		require.NoError(t, err)
		msg, err := wire.DecodeMessage(frame)
		require.NoError(t, err)
		cmd, ok := msg.(*wire.Command)
		require.True(t, ok)
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command sent")
		return nil
	}
}

func awaitResult(t *testing.T, f node.Future) node.Result {
	select {
	case res := <-f.ResultChan():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
		return node.Result{}
	}
}

func TestConnCorrelatesReplies(t *testing.T) {
	l := newChanLink()
	conn := NewConn(l)
	conn.Start()
	defer conn.Close()

	f1 := conn.Send(&wire.Command{Mask: wire.MaskGain, Gain: 3})
	f2 := conn.Send(&wire.Command{Mask: wire.MaskGain, Gain: 4})
	c1, c2 := l.sentCommand(t), l.sentCommand(t)
	require.NotEqual(t, c1.Seq, c2.Seq)

	// Replies out of order still land on the right futures.
	l.deliver(t, &wire.ErrorReply{Seq: c2.Seq, Code: wire.CodeOK})
	l.deliver(t, &wire.ErrorReply{Seq: c1.Seq, Code: wire.CodeBadField, Field: wire.FieldGain})

	res := awaitResult(t, f2)
	require.NoError(t, res.Err)
	assert.Equal(t, wire.CodeOK, res.Reply.Code)

	res = awaitResult(t, f1)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "gain")
}

func TestConnExpiresUnanswered(t *testing.T) {
	l := newChanLink()
	conn := NewConn(l)
	conn.Expiration = 50 * time.Millisecond
	conn.Start()
	defer conn.Close()

	f := conn.Send(&wire.Command{Mask: wire.MaskGain, Gain: 3})
	l.sentCommand(t)
	res := awaitResult(t, f)
	assert.Equal(t, context.DeadlineExceeded, res.Err)
}

func TestConnDeliversTelemetryAndFaults(t *testing.T) {
	l := newChanLink()
	conn := NewConn(l)
	conn.Start()
	defer conn.Close()

	l.deliver(t, &wire.Telemetry{Seq: 11, MeanPower: 5})
	l.deliver(t, &wire.FaultReport{Seq: 2})

	select {
	case tlm := <-conn.Telemetry():
		assert.Equal(t, uint32(11), tlm.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("no telemetry")
	}
	select {
	case rep := <-conn.Faults():
		assert.Equal(t, uint32(2), rep.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("no fault report")
	}
}

func TestConnIgnoresUnknownSeq(t *testing.T) {
	l := newChanLink()
	conn := NewConn(l)
	conn.Start()
	defer conn.Close()

	l.deliver(t, &wire.ErrorReply{Seq: 999, Code: wire.CodeOK})
	f := conn.Send(&wire.Command{Mask: wire.MaskGain, Gain: 3})
	cmd := l.sentCommand(t)
	l.deliver(t, &wire.ErrorReply{Seq: cmd.Seq, Code: wire.CodeOK})
	res := awaitResult(t, f)
	assert.NoError(t, res.Err)
}

// gatedWriteLink blocks each WriteFrame until a token arrives, standing
// in for a transport waiting on a slow broker.
type gatedWriteLink struct {
	*chanLink
	gate chan struct{}
}

func (l *gatedWriteLink) WriteFrame(f *wire.Raw) error {
	<-l.gate
	return l.chanLink.WriteFrame(f)
}

func TestConnSlowWriteDoesNotStallReplies(t *testing.T) {
	inner := newChanLink()
	l := &gatedWriteLink{chanLink: inner, gate: make(chan struct{}, 1)}
	conn := NewConn(l)
	conn.Start()
	defer conn.Close()

	l.gate <- struct{}{}
	f1 := conn.Send(&wire.Command{Mask: wire.MaskGain, Gain: 3})
	c1 := inner.sentCommand(t)

	// The second send sits in its write; the first command's reply must
	// still correlate and complete.
	f2Ch := make(chan node.Future, 1)
	go func() { f2Ch <- conn.Send(&wire.Command{Mask: wire.MaskGain, Gain: 4}) }()

	l.deliver(t, &wire.ErrorReply{Seq: c1.Seq, Code: wire.CodeOK})
	res := awaitResult(t, f1)
	require.NoError(t, res.Err)
	assert.Equal(t, wire.CodeOK, res.Reply.Code)

	l.gate <- struct{}{}
	f2 := <-f2Ch
	c2 := inner.sentCommand(t)
	l.deliver(t, &wire.ErrorReply{Seq: c2.Seq, Code: wire.CodeOK})
	res = awaitResult(t, f2)
	assert.NoError(t, res.Err)
}

func TestConnCloseFailsOutstanding(t *testing.T) {
	l := newChanLink()
	conn := NewConn(l)
	conn.Start()

	f := conn.Send(&wire.Command{Mask: wire.MaskGain, Gain: 3})
	l.sentCommand(t)
	require.NoError(t, conn.Close())
	res := awaitResult(t, f)
	assert.Error(t, res.Err)
}
