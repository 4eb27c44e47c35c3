package wire

import (
	"encoding/binary"
	"io"
)

// StreamWriter wraps an io.Writer to add length-prefixed TCP framing.
// Writes are not safe for concurrent use; callers serialise at a higher
// level (see pkg/session.Session).
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a stream writer over w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteFrame writes a single length-prefixed frame.
func (sw *StreamWriter) WriteFrame(frame []byte) error {
	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))

	if _, err := sw.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := sw.w.Write(frame)
	return err
}

// WritePacket encodes and writes a Packet as a single frame.
func (sw *StreamWriter) WritePacket(p Packet) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	return sw.WriteFrame(data)
}

// StreamReader wraps an io.Reader to read length-prefixed TCP frames.
type StreamReader struct {
	r io.Reader
}

// NewStreamReader creates a stream reader over r.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: r}
}

// ReadFrame reads a single length-prefixed frame, returning the raw body.
func (sr *StreamReader) ReadFrame() ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(sr.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, ErrStreamReadFailed
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, ErrInvalidLengthPrefix
	}
	if n > MaxFrameSize {
		return nil, ErrMessageTooLong
	}

	frame := make([]byte, n)
	if _, err := io.ReadFull(sr.r, frame); err != nil {
		return nil, ErrStreamReadFailed
	}
	return frame, nil
}

// ReadPacket reads a single frame and decodes it as a Packet.
func (sr *StreamReader) ReadPacket() (Packet, error) {
	data, err := sr.ReadFrame()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
