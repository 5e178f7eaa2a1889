// Package wire implements the frame format exchanged between node and host.
package wire

// Every message travels in a self-describing frame:
//
//   [version: 1][kind: 1][length: 2, little-endian][payload: length][crc: 2]
//
// The CRC is CRC-16/CCITT-FALSE computed over version through payload.
// A frame is complete only once the declared length and the CRC validate
// against the bytes actually present; the declared length is bounds-checked
// against MaxPayload before any payload byte is touched.
//
// The version byte is explicit and never inferred from payload shape.
// Within version 1, a telemetry payload may omit the trailing spectrum
// bins; absent bins decode as zeros. Any other version is rejected with
// ErrVersion.
//
// Producer: node firmware core (telemetry, fault reports, replies)
// Consumer: host tooling (commands)
