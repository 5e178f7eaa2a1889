// Package link defines the transport boundary for encoded frames. A link
// moves whole frames; framing and integrity live in pkg/wire, so every
// transport carries the identical byte layout.
package link

import "github.com/rfnode/rfnode.go/pkg/wire"

// FrameReader reads one whole frame per call.
type FrameReader interface {
	ReadFrame(*wire.Raw) error
}

// FrameWriter writes one whole frame per call.
type FrameWriter interface {
	WriteFrame(*wire.Raw) error
}

// FrameReadWriter reads and writes frames.
type FrameReadWriter interface {
	FrameReader
	FrameWriter
}
