package mqtt

import (
	"context"
	"errors"
	"io"

	"github.com/golang/glog"

	"github.com/rfnode/rfnode.go/pkg/node"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

// ErrFrameDropped reports an inbound MQTT message that was not a valid
// frame-sized payload.
var ErrFrameDropped = errors.New("mqtt: oversized frame dropped")

// ReadWriter implements link.FrameReadWriter over a topic pair. One MQTT
// message carries exactly one frame.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	frameCh chan wire.Raw
}

// NewFrameReadWriter creates the ReadWriter.
func NewFrameReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{Queue: q, frameCh: make(chan wire.Raw, 16)}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForNode sets topics using the node-side convention:
// SubTopic = name/cmd, PubTopic = name/tlm.
func (p *ReadWriter) ForNode(ref node.Ref) *ReadWriter {
	prefix := ref.Name()
	return p.WithTopics(prefix+"/cmd", prefix+"/tlm")
}

// ForHost sets topics using the host-side convention:
// SubTopic = name/tlm, PubTopic = name/cmd.
func (p *ReadWriter) ForHost(ref node.Ref) *ReadWriter {
	prefix := ref.Name()
	return p.WithTopics(prefix+"/tlm", prefix+"/cmd")
}

// ReadFrame implements FrameReader.
func (p *ReadWriter) ReadFrame(out *wire.Raw) error {
	raw, ok := <-p.frameCh
	if !ok {
		return io.EOF
	}
	*out = raw
	return nil
}

// WriteFrame implements FrameWriter.
func (p *ReadWriter) WriteFrame(f *wire.Raw) error {
	token := p.Queue.Pub(p.PubTopic, f.Bytes())
	token.Wait()
	return token.Error()
}

// Run implements Runnable, pumping the subscription for the lifetime of
// the context.
func (p *ReadWriter) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	defer close(p.frameCh)
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}

func (p *ReadWriter) handleMsg(topic string, payload []byte) {
	var raw wire.Raw
	if !raw.Set(payload) {
		glog.Warningf("%s: %v", topic, ErrFrameDropped)
		return
	}
	select {
	case p.frameCh <- raw:
	default:
		// The consumer is behind; freshness wins over delivery.
		glog.V(1).Infof("%s: inbound frame dropped, consumer behind", topic)
	}
}
