package wire

import (
	"encoding/binary"
	"fmt"
)

// Encode serialises a Packet to its wire representation: a one-byte opcode
// tag followed by the variant's fields.
func Encode(p Packet) ([]byte, error) {
	w := newEncoder()
	w.byte(byte(p.Opcode()))

	switch v := p.(type) {
	case GetChallenge:
		w.fixed(v.SigningPubkey[:])
	case Challenge:
		w.fixed(v.Nonce[:])
	case LoginRequest:
		w.fixed(v.SigningPubkey[:])
		w.fixed(v.Signature[:])
	case LoginResponse:
		w.bool(v.Accepted)
		w.bool(v.ProfileExists)
	case SetProfile:
		w.bytes(v.EncPubkey)
		w.string(v.FirstName)
		w.optString(v.Username)
		w.optString(v.LastName)
	case ProfileUpdated:
		w.bool(v.Success)
	case SearchUser:
		w.string(v.Username)
	case UserFound:
		w.fixed(v.SigningPubkey[:])
		w.bytes(v.EncPubkey)
		w.optString(v.Username)
		w.string(v.FirstName)
		w.optString(v.LastName)
	case UserNotFound:
		// no fields
	case SendMessage:
		w.fixed(v.RecipientPubkey[:])
		w.bytes(v.Ciphertext)
	case MessageReceived:
		w.fixed(v.SenderPubkey[:])
		w.bytes(v.SenderEncPubkey)
		w.bytes(v.Ciphertext)
	case MessageDelivered:
		w.bool(v.Success)
	case Ping:
	case Pong:
	default:
		return nil, fmt.Errorf("wire: unencodable packet type %T", p)
	}

	return w.finish()
}

// Decode parses a Packet from its wire representation.
func Decode(data []byte) (Packet, error) {
	if len(data) < 1 {
		return nil, ErrTruncated
	}
	r := newDecoder(data[1:])
	switch Opcode(data[0]) {
	case OpGetChallenge:
		var p GetChallenge
		if err := r.fixed(p.SigningPubkey[:]); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpChallenge:
		var p Challenge
		if err := r.fixed(p.Nonce[:]); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpLoginRequest:
		var p LoginRequest
		if err := r.fixed(p.SigningPubkey[:]); err != nil {
			return nil, err
		}
		if err := r.fixed(p.Signature[:]); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpLoginResponse:
		var p LoginResponse
		var err error
		if p.Accepted, err = r.boolv(); err != nil {
			return nil, err
		}
		if p.ProfileExists, err = r.boolv(); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpSetProfile:
		var p SetProfile
		var err error
		if p.EncPubkey, err = r.bytesv(); err != nil {
			return nil, err
		}
		if p.FirstName, err = r.stringv(); err != nil {
			return nil, err
		}
		if p.Username, err = r.optStringv(); err != nil {
			return nil, err
		}
		if p.LastName, err = r.optStringv(); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpProfileUpdated:
		var p ProfileUpdated
		var err error
		if p.Success, err = r.boolv(); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpSearchUser:
		var p SearchUser
		var err error
		if p.Username, err = r.stringv(); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpUserFound:
		var p UserFound
		var err error
		if err = r.fixed(p.SigningPubkey[:]); err != nil {
			return nil, err
		}
		if p.EncPubkey, err = r.bytesv(); err != nil {
			return nil, err
		}
		if p.Username, err = r.optStringv(); err != nil {
			return nil, err
		}
		if p.FirstName, err = r.stringv(); err != nil {
			return nil, err
		}
		if p.LastName, err = r.optStringv(); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpUserNotFound:
		return UserNotFound{}, r.done()
	case OpSendMessage:
		var p SendMessage
		var err error
		if err = r.fixed(p.RecipientPubkey[:]); err != nil {
			return nil, err
		}
		if p.Ciphertext, err = r.bytesv(); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpMessageReceived:
		var p MessageReceived
		var err error
		if err = r.fixed(p.SenderPubkey[:]); err != nil {
			return nil, err
		}
		if p.SenderEncPubkey, err = r.bytesv(); err != nil {
			return nil, err
		}
		if p.Ciphertext, err = r.bytesv(); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpMessageDelivered:
		var p MessageDelivered
		var err error
		if p.Success, err = r.boolv(); err != nil {
			return nil, err
		}
		return p, r.done()
	case OpPing:
		return Ping{}, r.done()
	case OpPong:
		return Pong{}, r.done()
	default:
		return nil, ErrUnknownOpcode
	}
}

// encoder accumulates a packet body.
type encoder struct {
	buf []byte
	err error
}

func newEncoder() *encoder {
	return &encoder{buf: make([]byte, 0, 64)}
}

func (e *encoder) byte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) bool(b bool) {
	if b {
		e.byte(1)
	} else {
		e.byte(0)
	}
}

func (e *encoder) fixed(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	if len(b) > 0xFFFF {
		e.err = ErrFieldTooLong
		return
	}
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(b)))
	e.buf = append(e.buf, prefix[:]...)
	e.buf = append(e.buf, b...)
}

func (e *encoder) string(s string) {
	e.bytes([]byte(s))
}

func (e *encoder) optString(s *string) {
	if s == nil {
		e.byte(0)
		return
	}
	e.byte(1)
	e.string(*s)
}

func (e *encoder) finish() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// decoder consumes a packet body.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf}
}

func (d *decoder) fixed(dst []byte) error {
	if len(d.buf)-d.pos < len(dst) {
		return ErrTruncated
	}
	copy(dst, d.buf[d.pos:d.pos+len(dst)])
	d.pos += len(dst)
	return nil
}

func (d *decoder) boolv() (bool, error) {
	if len(d.buf)-d.pos < 1 {
		return false, ErrTruncated
	}
	b := d.buf[d.pos]
	d.pos++
	return b != 0, nil
}

func (d *decoder) bytesv() ([]byte, error) {
	if len(d.buf)-d.pos < 2 {
		return nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(d.buf[d.pos : d.pos+2]))
	d.pos += 2
	if len(d.buf)-d.pos < n {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+n])
	d.pos += n
	return out, nil
}

func (d *decoder) stringv() (string, error) {
	b, err := d.bytesv()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) optStringv() (*string, error) {
	present, err := d.boolv()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := d.stringv()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *decoder) done() error {
	// Trailing bytes are tolerated (forward compatibility), matching a
	// lenient reading of a fixed wire table rather than strict framing.
	return nil
}
