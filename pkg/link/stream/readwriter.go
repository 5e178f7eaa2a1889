// Package stream adapts any byte stream into a frame link. Frames are
// self-delimiting on the wire, so the stream carries them back to back
// with no extra envelope.
package stream

import (
	"io"
	"sync"

	"github.com/rfnode/rfnode.go/pkg/wire"
)

// ReadWriter implements link.FrameReadWriter over an io.ReadWriter, such
// as a serial port or a TCP connection.
type ReadWriter struct {
	rw  io.ReadWriter
	dec wire.Decoder
	buf [512]byte

	sendLock sync.Mutex
}

// New creates a ReadWriter over s.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{rw: s}
}

// ReadFrame implements FrameReader. It reads until one complete frame
// validates. A frame-level error (bad integrity, foreign version) is
// returned after the decoder resynced past the offending bytes, so the
// caller counts it and simply calls again.
func (p *ReadWriter) ReadFrame(out *wire.Raw) error {
	for {
		switch err := p.dec.Next(out); err {
		case nil:
			return nil
		case wire.ErrTruncated:
		default:
			return err
		}
		n, err := p.rw.Read(p.buf[:])
		if n > 0 {
			if _, werr := p.dec.Write(p.buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

// WriteFrame implements FrameWriter.
func (p *ReadWriter) WriteFrame(f *wire.Raw) error {
	p.sendLock.Lock()
	defer p.sendLock.Unlock()
	_, err := p.rw.Write(f.Bytes())
	return err
}

// Close implements io.Closer when the underlying stream supports it.
func (p *ReadWriter) Close() error {
	if closer, ok := p.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
