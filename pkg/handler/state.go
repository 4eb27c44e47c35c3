// Package handler dispatches decoded inbound packets to the auth, user,
// and router services, using the owning connection's current identity as
// the implicit sender.
package handler

import (
	"github.com/duskrelay/whisperd/pkg/wire"
)

// ConnectionState is the mutable per-connection view the Handler reads and
// updates: the identity currently registered in the session registry for
// this socket, and whether login has completed. It is owned exclusively by
// the connection's single reader goroutine; Handler never receives it from
// more than one caller at once.
type ConnectionState struct {
	Identity []byte

	// temporary is true until a LoginRequest is accepted. Tracked
	// explicitly rather than inferred from Identity's length: a peer
	// address can coincidentally stringify to exactly
	// wire.SigningPubkeySize bytes, which would otherwise misclassify a
	// pre-login socket as logged in.
	temporary bool
}

// NewConnectionState creates state for a freshly accepted connection,
// registered under its temporary address-derived identity.
func NewConnectionState(temporaryIdentity []byte) *ConnectionState {
	return &ConnectionState{
		Identity:  append([]byte(nil), temporaryIdentity...),
		temporary: true,
	}
}

// IsTemporary reports whether the connection has not yet completed login.
func (s *ConnectionState) IsTemporary() bool {
	return s.temporary
}

func (s *ConnectionState) signingPubkey() [wire.SigningPubkeySize]byte {
	var pk [wire.SigningPubkeySize]byte
	copy(pk[:], s.Identity)
	return pk
}
