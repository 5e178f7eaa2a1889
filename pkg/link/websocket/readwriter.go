// Package websocket carries one frame per websocket message.
package websocket

import (
	"golang.org/x/net/websocket"

	"github.com/rfnode/rfnode.go/pkg/wire"
)

// ReadWriter implements link.FrameReadWriter.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// ReadFrame implements FrameReader.
func (p *ReadWriter) ReadFrame(out *wire.Raw) error {
	var pkt []byte
	if err := websocket.Message.Receive((*websocket.Conn)(p), &pkt); err != nil {
		return err
	}
	if !out.Set(pkt) {
		return wire.ErrTooLarge
	}
	return nil
}

// WriteFrame implements FrameWriter.
func (p *ReadWriter) WriteFrame(f *wire.Raw) error {
	return websocket.Message.Send((*websocket.Conn)(p), f.Bytes())
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}
