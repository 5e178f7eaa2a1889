package wire

import "encoding/binary"

// Version is the frame format version this implementation speaks.
const Version = 1

// Frame layout constants. The header and trailer layout is stable across
// versions so a receiver can always delimit a frame before judging it.
const (
	HeaderLen   = 4
	CRCLen      = 2
	MaxPayload  = 512
	MaxFrameLen = HeaderLen + MaxPayload + CRCLen
)

// Kind is the message-kind tag carried in every frame.
type Kind byte

// Frame kinds.
const (
	KindTelemetry   Kind = 0x01
	KindCommand     Kind = 0x02
	KindFaultReport Kind = 0x03
	KindError       Kind = 0xFF
)

// String returns a display name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTelemetry:
		return "telemetry"
	case KindCommand:
		return "command"
	case KindFaultReport:
		return "fault-report"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Raw holds one encoded frame in fixed storage. It is copyable by value,
// which is how frames move through the bounded transport queues without
// allocating.
type Raw struct {
	N int
	B [MaxFrameLen]byte
}

// Bytes returns the encoded frame.
func (r *Raw) Bytes() []byte {
	return r.B[:r.N]
}

// Set copies an externally received frame in. It fails when the input
// cannot possibly be a frame, so oversized input is rejected before any
// further inspection.
func (r *Raw) Set(b []byte) bool {
	if len(b) > MaxFrameLen {
		return false
	}
	r.N = copy(r.B[:], b)
	return true
}

// Frame is the decoded view over an encoded frame. Payload aliases the
// buffer handed to Decode.
type Frame struct {
	Version byte
	Kind    Kind
	Payload []byte
}

// Encode frames payload into out. The payload is copied; out is the only
// storage written. Payloads over MaxPayload fail with ErrTooLarge rather
// than truncating.
func Encode(kind Kind, payload []byte, out *Raw) error {
	if len(payload) > MaxPayload {
		return ErrTooLarge
	}
	b := out.B[:]
	b[0] = Version
	b[1] = byte(kind)
	binary.LittleEndian.PutUint16(b[2:], uint16(len(payload)))
	n := HeaderLen + copy(b[HeaderLen:], payload)
	binary.LittleEndian.PutUint16(b[n:], crc16(b[:n]))
	out.N = n + CRCLen
	return nil
}

// Decode parses one frame from the head of b and returns the number of
// bytes consumed. ErrTruncated means b ends before the frame does. The
// declared length is checked against MaxPayload before any payload access,
// and the CRC is verified before the version byte is judged, so corruption
// never masquerades as a version mismatch.
func Decode(b []byte) (Frame, int, error) {
	if len(b) < HeaderLen {
		return Frame{}, 0, ErrTruncated
	}
	length := int(binary.LittleEndian.Uint16(b[2:]))
	if length > MaxPayload {
		return Frame{}, 0, ErrTooLarge
	}
	total := HeaderLen + length + CRCLen
	if len(b) < total {
		return Frame{}, 0, ErrTruncated
	}
	if crc16(b[:HeaderLen+length]) != binary.LittleEndian.Uint16(b[HeaderLen+length:]) {
		return Frame{}, 0, ErrIntegrity
	}
	if b[0] != Version {
		return Frame{}, 0, ErrVersion
	}
	f := Frame{
		Version: b[0],
		Kind:    Kind(b[1]),
		Payload: b[HeaderLen : HeaderLen+length],
	}
	return f, total, nil
}

// crc16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xffff).
func crc16(b []byte) uint16 {
	crc := uint16(0xffff)
	for _, x := range b {
		crc ^= uint16(x) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
