package wire

import "errors"

var (
	// ErrTruncated indicates the buffer ends before the frame does.
	// A streaming caller should wait for more bytes; every other error
	// means the bytes at hand must be discarded.
	ErrTruncated = errors.New("truncated frame")
	// ErrIntegrity indicates the CRC does not match the payload present.
	ErrIntegrity = errors.New("integrity mismatch")
	// ErrVersion indicates a version this implementation does not speak.
	ErrVersion = errors.New("unsupported version")
	// ErrUnknownKind indicates an unrecognized kind byte.
	ErrUnknownKind = errors.New("unknown kind")
	// ErrTooLarge indicates a payload exceeding MaxPayload, on either
	// the encoding or the decoding side.
	ErrTooLarge = errors.New("payload too large")
	// ErrBadPayload indicates a payload whose size does not match its kind.
	ErrBadPayload = errors.New("bad payload")
)
