package wire

import "errors"

// Wire-level errors.
var (
	// ErrStreamReadFailed is returned when reading a framed message from the
	// stream fails for a reason other than a clean EOF.
	ErrStreamReadFailed = errors.New("wire: stream read failed")

	// ErrMessageTooLong is returned when a frame's declared length exceeds
	// MaxFrameSize.
	ErrMessageTooLong = errors.New("wire: frame too long")

	// ErrInvalidLengthPrefix is returned when a frame declares zero length.
	ErrInvalidLengthPrefix = errors.New("wire: invalid length prefix")

	// ErrTruncated is returned when a packet body is shorter than its
	// fixed-width fields require.
	ErrTruncated = errors.New("wire: truncated packet")

	// ErrUnknownOpcode is returned when decoding a frame whose opcode tag
	// does not match any known Packet variant.
	ErrUnknownOpcode = errors.New("wire: unknown opcode")

	// ErrFieldTooLong is returned when encoding a variable-length field
	// whose length does not fit in the wire's uint16 length prefix.
	ErrFieldTooLong = errors.New("wire: variable-length field exceeds 65535 bytes")
)
