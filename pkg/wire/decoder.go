package wire

import "encoding/binary"

// Decoder reassembles frames from an unframed byte stream. Storage is
// fixed at construction; the zero value is ready to use.
type Decoder struct {
	buf [2 * MaxFrameLen]byte
	n   int
}

// Write feeds received bytes in. It implements io.Writer so a stream link
// can copy into the decoder directly. When the internal buffer is full the
// caller must drain with Next before feeding more; the unwritten remainder
// is reported through the short write count.
func (d *Decoder) Write(p []byte) (int, error) {
	n := copy(d.buf[d.n:], p)
	d.n += n
	if n < len(p) {
		return n, ErrTooLarge
	}
	return n, nil
}

// Buffered returns the number of bytes pending in the decoder.
func (d *Decoder) Buffered() int {
	return d.n
}

// Next extracts the next complete frame into out. ErrTruncated means more
// bytes are needed and is never returned for a frame that is actually
// corrupt. Any other error consumed some malformed input: integrity
// failures resynchronize one byte at a time since the length field itself
// cannot be trusted, while a CRC-valid frame of a foreign version is
// skipped whole.
func (d *Decoder) Next(out *Raw) error {
	if d.n == 0 {
		return ErrTruncated
	}
	_, consumed, err := Decode(d.buf[:d.n])
	switch err {
	case nil:
		copy(out.B[:], d.buf[:consumed])
		out.N = consumed
		d.consume(consumed)
		return nil
	case ErrTruncated:
		return ErrTruncated
	case ErrVersion:
		length := int(binary.LittleEndian.Uint16(d.buf[2:]))
		d.consume(HeaderLen + length + CRCLen)
	default:
		d.consume(1)
	}
	return err
}

func (d *Decoder) consume(n int) {
	copy(d.buf[:], d.buf[n:d.n])
	d.n -= n
}
