package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	var raw Raw
	require.NoError(t, Encode(KindTelemetry, payload, &raw))
	b := raw.Bytes()
	require.Equal(t, HeaderLen+len(payload)+CRCLen, len(b))
	require.Equal(t, byte(Version), b[0])
	require.Equal(t, byte(KindTelemetry), b[1])
	require.Equal(t, uint16(len(payload)), binary.LittleEndian.Uint16(b[2:]))
	require.Equal(t, payload, b[HeaderLen:HeaderLen+len(payload)])
	require.Equal(t, crc16(b[:HeaderLen+len(payload)]), binary.LittleEndian.Uint16(b[HeaderLen+len(payload):]))
}

func TestEncodeTooLarge(t *testing.T) {
	var raw Raw
	require.Equal(t, ErrTooLarge, Encode(KindTelemetry, make([]byte, MaxPayload+1), &raw))
	require.NoError(t, Encode(KindTelemetry, make([]byte, MaxPayload), &raw))
}

func TestDecodeTruncated(t *testing.T) {
	var raw Raw
	require.NoError(t, Encode(KindCommand, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, &raw))
	// Every proper prefix is Truncated, never a false integrity mismatch.
	for n := 0; n < raw.N; n++ {
		_, _, err := Decode(raw.B[:n])
		require.Equal(t, ErrTruncated, err, "prefix of %d bytes", n)
	}
	_, consumed, err := Decode(raw.Bytes())
	require.NoError(t, err)
	require.Equal(t, raw.N, consumed)
}

func TestDecodeRejectsOversizeLength(t *testing.T) {
	// Declared length exceeds MaxPayload: rejected from the header alone,
	// before any payload byte would be read.
	b := []byte{Version, byte(KindTelemetry), 0, 0}
	binary.LittleEndian.PutUint16(b[2:], MaxPayload+1)
	_, _, err := Decode(b)
	require.Equal(t, ErrTooLarge, err)
}

func TestDecodeIntegrityMismatch(t *testing.T) {
	var raw Raw
	require.NoError(t, Encode(KindTelemetry, []byte{1, 2, 3}, &raw))
	raw.B[HeaderLen] ^= 0x40
	_, _, err := Decode(raw.Bytes())
	require.Equal(t, ErrIntegrity, err)
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	var raw Raw
	require.NoError(t, Encode(KindTelemetry, []byte{1, 2, 3}, &raw))
	// A well-formed frame of a foreign version: CRC valid, version not ours.
	raw.B[0] = Version + 1
	end := raw.N - CRCLen
	binary.LittleEndian.PutUint16(raw.B[end:], crc16(raw.B[:end]))
	_, _, err := Decode(raw.Bytes())
	require.Equal(t, ErrVersion, err)
}

func TestMessageRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		msg  Message
	}{
		{"telemetry", &Telemetry{
			Seq:        7,
			Timestamp:  0x0102030405060708,
			Flags:      FlagDegraded,
			Gain:       33,
			MeanPower:  1234,
			PeakPower:  56789,
			PeakOffset: 512,
			Bins:       [NumBins]uint16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		}},
		{"command", &Command{
			Seq:            42,
			Mask:           MaskSampleRateDiv | MaskGain,
			SampleRateDiv:  64,
			Gain:           12,
			ReportInterval: 1000,
		}},
		{"error reply", &ErrorReply{Seq: 42, Code: CodeBadField, Field: FieldGain}},
		{"fault report", &FaultReport{
			Seq: 3,
			Counters: [NumFaultKinds]FaultCounter{
				{Count: 1, LastTick: 100},
				{Count: 0xffffffff, LastTick: 200},
			},
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var raw Raw
			require.NoError(t, EncodeMessage(tc.msg, &raw))
			f, consumed, err := Decode(raw.Bytes())
			require.NoError(t, err)
			require.Equal(t, raw.N, consumed)
			require.Equal(t, tc.msg.Kind(), f.Kind)
			decoded, err := DecodeMessage(f)
			require.NoError(t, err)
			require.Equal(t, tc.msg, decoded)
		})
	}
}

func TestDecodeMessageUnknownKind(t *testing.T) {
	var raw Raw
	require.NoError(t, Encode(Kind(0x7e), nil, &raw))
	f, _, err := Decode(raw.Bytes())
	require.NoError(t, err)
	_, err = DecodeMessage(f)
	require.Equal(t, ErrUnknownKind, err)
}

func TestTelemetryDefaultFill(t *testing.T) {
	// A version-1 telemetry payload without the trailing bins decodes with
	// the bins defaulted to zero.
	full := &Telemetry{Seq: 9, Timestamp: 11, Gain: 5, MeanPower: 21, PeakPower: 22, PeakOffset: 23}
	var scratch [MaxPayload]byte
	n := full.encodePayload(scratch[:])
	require.Equal(t, telemetrySize, n)

	var raw Raw
	require.NoError(t, Encode(KindTelemetry, scratch[:telemetryHead], &raw))
	f, _, err := Decode(raw.Bytes())
	require.NoError(t, err)
	msg, err := DecodeMessage(f)
	require.NoError(t, err)
	require.Equal(t, full, msg)
}

func TestCommandBadPayloadSize(t *testing.T) {
	var raw Raw
	require.NoError(t, Encode(KindCommand, []byte{1, 2, 3}, &raw))
	f, _, err := Decode(raw.Bytes())
	require.NoError(t, err)
	_, err = DecodeMessage(f)
	require.Equal(t, ErrBadPayload, err)
}
