package wire

import "encoding/binary"

// NumBins is the length of the coarse spectrum vector in telemetry.
const NumBins = 16

// NumFaultKinds is the number of fault counters in a fault report.
// It mirrors the fault kinds of the core; pkg/core/fault asserts the two
// stay in step.
const NumFaultKinds = 6

// Telemetry flag bits.
const (
	// FlagDegraded marks a record whose source buffer showed an anomaly
	// (partial fill, acquisition resumed after a stall).
	FlagDegraded = 0x01
)

// Command mask bits selecting which parameters a command carries.
const (
	MaskSampleRateDiv = 1 << 0
	MaskGain          = 1 << 1
	MaskReportInterval = 1 << 2
)

// Code classifies an Error frame. CodeOK doubles as the positive
// acknowledgement of an accepted command.
type Code byte

// Error codes.
const (
	CodeOK Code = iota
	CodeBadField
	CodeUnknownKind
	CodeUnsupportedVersion
	CodeMalformed
)

// String returns a display name for the code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeBadField:
		return "bad field"
	case CodeUnknownKind:
		return "unknown kind"
	case CodeUnsupportedVersion:
		return "unsupported version"
	case CodeMalformed:
		return "malformed"
	}
	return "unknown"
}

// Field names a configuration parameter in an Error frame.
type Field byte

// Fields.
const (
	FieldNone Field = iota
	FieldSampleRateDiv
	FieldGain
	FieldReportInterval
)

// String returns a display name for the field.
func (f Field) String() string {
	switch f {
	case FieldNone:
		return "none"
	case FieldSampleRateDiv:
		return "sample-rate-div"
	case FieldGain:
		return "gain"
	case FieldReportInterval:
		return "report-interval"
	}
	return "unknown"
}

// Message is a typed payload carried by one frame kind.
type Message interface {
	Kind() Kind
	encodePayload(b []byte) int
	decodePayload(b []byte) error
}

// EncodeMessage frames msg into out using a stack scratch buffer.
func EncodeMessage(msg Message, out *Raw) error {
	var scratch [MaxPayload]byte
	n := msg.encodePayload(scratch[:])
	return Encode(msg.Kind(), scratch[:n], out)
}

// DecodeMessage interprets the payload of a decoded frame.
func DecodeMessage(f Frame) (Message, error) {
	var msg Message
	switch f.Kind {
	case KindTelemetry:
		msg = &Telemetry{}
	case KindCommand:
		msg = &Command{}
	case KindFaultReport:
		msg = &FaultReport{}
	case KindError:
		msg = &ErrorReply{}
	default:
		return nil, ErrUnknownKind
	}
	if err := msg.decodePayload(f.Payload); err != nil {
		return nil, err
	}
	return msg, nil
}

// Telemetry wraps one processed record.
type Telemetry struct {
	Seq        uint32
	Timestamp  uint64
	Flags      byte
	Gain       byte
	MeanPower  uint32
	PeakPower  uint32
	PeakOffset uint16
	Bins       [NumBins]uint16
}

const (
	telemetryHead = 24
	telemetrySize = telemetryHead + NumBins*2
)

// Kind implements Message.
func (t *Telemetry) Kind() Kind { return KindTelemetry }

// Degraded reports whether the record came from an anomalous buffer.
func (t *Telemetry) Degraded() bool { return t.Flags&FlagDegraded != 0 }

func (t *Telemetry) encodePayload(b []byte) int {
	binary.LittleEndian.PutUint32(b[0:], t.Seq)
	binary.LittleEndian.PutUint64(b[4:], t.Timestamp)
	b[12] = t.Flags
	b[13] = t.Gain
	binary.LittleEndian.PutUint32(b[14:], t.MeanPower)
	binary.LittleEndian.PutUint32(b[18:], t.PeakPower)
	binary.LittleEndian.PutUint16(b[22:], t.PeakOffset)
	for i, bin := range t.Bins {
		binary.LittleEndian.PutUint16(b[telemetryHead+2*i:], bin)
	}
	return telemetrySize
}

func (t *Telemetry) decodePayload(b []byte) error {
	if len(b) != telemetryHead && len(b) != telemetrySize {
		return ErrBadPayload
	}
	t.Seq = binary.LittleEndian.Uint32(b[0:])
	t.Timestamp = binary.LittleEndian.Uint64(b[4:])
	t.Flags = b[12]
	t.Gain = b[13]
	t.MeanPower = binary.LittleEndian.Uint32(b[14:])
	t.PeakPower = binary.LittleEndian.Uint32(b[18:])
	t.PeakOffset = binary.LittleEndian.Uint16(b[22:])
	t.Bins = [NumBins]uint16{}
	if len(b) == telemetrySize {
		for i := range t.Bins {
			t.Bins[i] = binary.LittleEndian.Uint16(b[telemetryHead+2*i:])
		}
	}
	return nil
}

// Command wraps a configuration change. Mask selects the parameters the
// command carries; unselected fields are ignored by the receiver.
type Command struct {
	Seq            uint32
	Mask           byte
	SampleRateDiv  uint16
	Gain           byte
	ReportInterval uint16
}

const commandSize = 10

// Kind implements Message.
func (c *Command) Kind() Kind { return KindCommand }

func (c *Command) encodePayload(b []byte) int {
	binary.LittleEndian.PutUint32(b[0:], c.Seq)
	b[4] = c.Mask
	binary.LittleEndian.PutUint16(b[5:], c.SampleRateDiv)
	b[7] = c.Gain
	binary.LittleEndian.PutUint16(b[8:], c.ReportInterval)
	return commandSize
}

func (c *Command) decodePayload(b []byte) error {
	if len(b) != commandSize {
		return ErrBadPayload
	}
	c.Seq = binary.LittleEndian.Uint32(b[0:])
	c.Mask = b[4]
	c.SampleRateDiv = binary.LittleEndian.Uint16(b[5:])
	c.Gain = b[7]
	c.ReportInterval = binary.LittleEndian.Uint16(b[8:])
	return nil
}

// ErrorReply answers a command, or reports a rejected inbound frame.
// Seq correlates to the command that caused it, zero when uncorrelated.
type ErrorReply struct {
	Seq   uint32
	Code  Code
	Field Field
}

const errorReplySize = 6

// Kind implements Message.
func (e *ErrorReply) Kind() Kind { return KindError }

func (e *ErrorReply) encodePayload(b []byte) int {
	binary.LittleEndian.PutUint32(b[0:], e.Seq)
	b[4] = byte(e.Code)
	b[5] = byte(e.Field)
	return errorReplySize
}

func (e *ErrorReply) decodePayload(b []byte) error {
	if len(b) != errorReplySize {
		return ErrBadPayload
	}
	e.Seq = binary.LittleEndian.Uint32(b[0:])
	e.Code = Code(b[4])
	e.Field = Field(b[5])
	return nil
}

// FaultCounter is one saturating counter in a fault report.
type FaultCounter struct {
	Count    uint32
	LastTick uint64
}

// FaultReport carries the fault counter snapshot.
type FaultReport struct {
	Seq      uint32
	Counters [NumFaultKinds]FaultCounter
}

const faultReportSize = 4 + NumFaultKinds*12

// Kind implements Message.
func (r *FaultReport) Kind() Kind { return KindFaultReport }

func (r *FaultReport) encodePayload(b []byte) int {
	binary.LittleEndian.PutUint32(b[0:], r.Seq)
	for i, c := range r.Counters {
		off := 4 + 12*i
		binary.LittleEndian.PutUint32(b[off:], c.Count)
		binary.LittleEndian.PutUint64(b[off+4:], c.LastTick)
	}
	return faultReportSize
}

func (r *FaultReport) decodePayload(b []byte) error {
	if len(b) != faultReportSize {
		return ErrBadPayload
	}
	r.Seq = binary.LittleEndian.Uint32(b[0:])
	for i := range r.Counters {
		off := 4 + 12*i
		r.Counters[i].Count = binary.LittleEndian.Uint32(b[off:])
		r.Counters[i].LastTick = binary.LittleEndian.Uint64(b[off+4:])
	}
	return nil
}
