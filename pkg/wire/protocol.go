// Package wire implements the length-prefixed TCP framing and the
// tagged-variant Packet encoding used between whisperd and its clients.
//
// This package stands in for the wire codec collaborator assumed available
// by the rest of the module (read_frame/write_frame plus a Packet type):
// it is a small, self-contained implementation rather than the subject of
// this module's design.
package wire

const (
	// SigningPubkeySize is the length in bytes of an Ed25519 verifying key.
	SigningPubkeySize = 32

	// NonceSize is the length in bytes of a login challenge.
	NonceSize = 32

	// SignatureSize is the length in bytes of an Ed25519 signature.
	SignatureSize = 64

	// MaxFrameSize bounds a single framed message to guard against a
	// misbehaving or malicious peer declaring an enormous length prefix.
	MaxFrameSize = 1 << 20 // 1 MiB

	// lengthPrefixSize is the width of the stream framer's length prefix.
	lengthPrefixSize = 4
)

// Opcode tags a Packet variant on the wire.
type Opcode uint8

// Opcode values. Fixed once assigned; do not renumber.
const (
	OpGetChallenge Opcode = iota + 1
	OpChallenge
	OpLoginRequest
	OpLoginResponse
	OpSetProfile
	OpProfileUpdated
	OpSearchUser
	OpUserFound
	OpUserNotFound
	OpSendMessage
	OpMessageReceived
	OpMessageDelivered
	OpPing
	OpPong
)

// Packet is the tagged union of every message exchanged between client and
// server, per the wire table in the project's design document.
type Packet interface {
	Opcode() Opcode
}

// GetChallenge is sent by a client requesting a login nonce for a signing
// public key (not necessarily its own; the server does not check that).
type GetChallenge struct {
	SigningPubkey [SigningPubkeySize]byte
}

// Opcode implements Packet.
func (GetChallenge) Opcode() Opcode { return OpGetChallenge }

// Challenge carries the freshly issued login nonce.
type Challenge struct {
	Nonce [NonceSize]byte
}

// Opcode implements Packet.
func (Challenge) Opcode() Opcode { return OpChallenge }

// LoginRequest proves possession of a signing private key by signing the
// previously issued challenge.
type LoginRequest struct {
	SigningPubkey [SigningPubkeySize]byte
	Signature     [SignatureSize]byte
}

// Opcode implements Packet.
func (LoginRequest) Opcode() Opcode { return OpLoginRequest }

// LoginResponse reports whether the login attempt was accepted and, if so,
// whether a profile already exists for this signing key.
type LoginResponse struct {
	Accepted      bool
	ProfileExists bool
}

// Opcode implements Packet.
func (LoginResponse) Opcode() Opcode { return OpLoginResponse }

// SetProfile publishes or updates the caller's encryption key and profile
// fields.
type SetProfile struct {
	EncPubkey []byte
	FirstName string
	Username  *string
	LastName  *string
}

// Opcode implements Packet.
func (SetProfile) Opcode() Opcode { return OpSetProfile }

// ProfileUpdated acknowledges a SetProfile.
type ProfileUpdated struct {
	Success bool
}

// Opcode implements Packet.
func (ProfileUpdated) Opcode() Opcode { return OpProfileUpdated }

// SearchUser looks another user up by their exact username.
type SearchUser struct {
	Username string
}

// Opcode implements Packet.
func (SearchUser) Opcode() Opcode { return OpSearchUser }

// UserFound is the successful reply to SearchUser.
type UserFound struct {
	SigningPubkey [SigningPubkeySize]byte
	EncPubkey     []byte
	Username      *string
	FirstName     string
	LastName      *string
}

// Opcode implements Packet.
func (UserFound) Opcode() Opcode { return OpUserFound }

// UserNotFound is the negative reply to SearchUser.
type UserNotFound struct{}

// Opcode implements Packet.
func (UserNotFound) Opcode() Opcode { return OpUserNotFound }

// SendMessage asks the server to route an opaque ciphertext to a recipient.
type SendMessage struct {
	RecipientPubkey [SigningPubkeySize]byte
	Ciphertext      []byte
}

// Opcode implements Packet.
func (SendMessage) Opcode() Opcode { return OpSendMessage }

// MessageReceived delivers a ciphertext, live or drained from the pending
// queue, to its recipient.
type MessageReceived struct {
	SenderPubkey    [SigningPubkeySize]byte
	SenderEncPubkey []byte
	Ciphertext      []byte
}

// Opcode implements Packet.
func (MessageReceived) Opcode() Opcode { return OpMessageReceived }

// MessageDelivered acknowledges a SendMessage. Success here means "accepted
// by the server", not "read by the recipient".
type MessageDelivered struct {
	Success bool
}

// Opcode implements Packet.
func (MessageDelivered) Opcode() Opcode { return OpMessageDelivered }

// Ping is a liveness probe; the server replies with Pong.
type Ping struct{}

// Opcode implements Packet.
func (Ping) Opcode() Opcode { return OpPing }

// Pong is the reply to Ping.
type Pong struct{}

// Opcode implements Packet.
func (Pong) Opcode() Opcode { return OpPong }
