package handler

import (
	"context"
	"errors"

	"github.com/pion/logging"

	"github.com/duskrelay/whisperd/pkg/session"
	"github.com/duskrelay/whisperd/pkg/store"
	"github.com/duskrelay/whisperd/pkg/user"
	"github.com/duskrelay/whisperd/pkg/wire"
)

// Authenticator is the auth.Service surface Handler needs.
type Authenticator interface {
	GenerateChallenge(signingPubkey [wire.SigningPubkeySize]byte) ([wire.NonceSize]byte, error)
	VerifyLogin(signingPubkey [wire.SigningPubkeySize]byte, signature [wire.SignatureSize]byte) (accepted bool, profileExists bool)
	MarkAuthenticated(signingPubkey [wire.SigningPubkeySize]byte)
}

// ProfileService is the user.Service surface Handler needs.
type ProfileService interface {
	SetProfile(ctx context.Context, signingPubkey [wire.SigningPubkeySize]byte, encPubkey []byte, firstName string, username, lastName *string) error
	SearchUser(ctx context.Context, username string) (*store.UserProfile, error)
}

// Messenger is the router.Router surface Handler needs.
type Messenger interface {
	Route(ctx context.Context, sender, recipient [wire.SigningPubkeySize]byte, ciphertext []byte) error
	DeliverPending(ctx context.Context, recipient [wire.SigningPubkeySize]byte) error
}

// Handler dispatches decoded inbound packets to the services above.
type Handler struct {
	auth     Authenticator
	users    ProfileService
	router   Messenger
	registry *session.Registry
	log      logging.LeveledLogger
}

// New creates a Handler.
func New(auth Authenticator, users ProfileService, router Messenger, registry *session.Registry, loggerFactory logging.LoggerFactory) *Handler {
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("handler")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("handler")
	}

	return &Handler{auth: auth, users: users, router: router, registry: registry, log: log}
}

// Dispatch handles a single decoded inbound packet for the connection
// described by state, using state.Identity as the implicit sender. It may
// mutate state.Identity (on an accepted login) and may send reply packets
// through the registry.
func (h *Handler) Dispatch(ctx context.Context, state *ConnectionState, pkt wire.Packet) error {
	switch p := pkt.(type) {
	case wire.GetChallenge:
		return h.handleGetChallenge(state, p)
	case wire.LoginRequest:
		return h.handleLoginRequest(ctx, state, p)
	case wire.SetProfile:
		return h.handleSetProfile(ctx, state, p)
	case wire.SearchUser:
		return h.handleSearchUser(ctx, state, p)
	case wire.SendMessage:
		return h.handleSendMessage(ctx, state, p)
	case wire.Ping:
		return h.registry.SendTo(state.Identity, wire.Pong{})
	default:
		h.log.Warnf("unhandled inbound packet opcode %v", pkt.Opcode())
		return nil
	}
}

func (h *Handler) handleGetChallenge(state *ConnectionState, p wire.GetChallenge) error {
	nonce, err := h.auth.GenerateChallenge(p.SigningPubkey)
	if err != nil {
		return err
	}
	return h.registry.SendTo(state.Identity, wire.Challenge{Nonce: nonce})
}

func (h *Handler) handleLoginRequest(ctx context.Context, state *ConnectionState, p wire.LoginRequest) error {
	accepted, profileExists := h.auth.VerifyLogin(p.SigningPubkey, p.Signature)

	if accepted {
		// Safe ordering: rename only on acceptance, then flip the
		// authenticated flag under the new identity.
		h.registry.Rename(state.Identity, p.SigningPubkey[:])
		state.Identity = append([]byte(nil), p.SigningPubkey[:]...)
		state.temporary = false
		h.auth.MarkAuthenticated(p.SigningPubkey)

		go h.deliverPendingAfterLogin(ctx, p.SigningPubkey)
	}

	return h.registry.SendTo(state.Identity, wire.LoginResponse{
		Accepted:      accepted,
		ProfileExists: profileExists,
	})
}

// deliverPendingAfterLogin runs detached from the request that triggered
// it, so it must not be cancelled when Dispatch returns.
func (h *Handler) deliverPendingAfterLogin(ctx context.Context, signingPubkey [wire.SigningPubkeySize]byte) {
	detached := context.WithoutCancel(ctx)
	if err := h.router.DeliverPending(detached, signingPubkey); err != nil {
		h.log.Errorf("pending delivery failed: %v", err)
	}
}

func (h *Handler) handleSetProfile(ctx context.Context, state *ConnectionState, p wire.SetProfile) error {
	if state.IsTemporary() {
		return nil
	}

	pk := state.signingPubkey()
	err := h.users.SetProfile(ctx, pk, p.EncPubkey, p.FirstName, p.Username, p.LastName)

	success := err == nil
	if err != nil && !errors.Is(err, store.ErrUsernameTaken) {
		h.log.Errorf("set_profile failed: %v", err)
	}

	return h.registry.SendTo(state.Identity, wire.ProfileUpdated{Success: success})
}

func (h *Handler) handleSearchUser(ctx context.Context, state *ConnectionState, p wire.SearchUser) error {
	profile, err := h.users.SearchUser(ctx, p.Username)
	if err != nil {
		return h.registry.SendTo(state.Identity, wire.UserNotFound{})
	}

	var signingPubkey [wire.SigningPubkeySize]byte
	copy(signingPubkey[:], profile.SigningPubkey)

	return h.registry.SendTo(state.Identity, wire.UserFound{
		SigningPubkey: signingPubkey,
		EncPubkey:     profile.EncryptionPubkey,
		Username:      profile.Username,
		FirstName:     profile.FirstName,
		LastName:      profile.LastName,
	})
}

func (h *Handler) handleSendMessage(ctx context.Context, state *ConnectionState, p wire.SendMessage) error {
	if state.IsTemporary() {
		return nil
	}

	sender := state.signingPubkey()
	err := h.router.Route(ctx, sender, p.RecipientPubkey, p.Ciphertext)

	// The sender has no published encryption key: it is unprovisioned, so
	// the message is dropped silently, with no reply at all.
	if errors.Is(err, user.ErrNotFound) {
		return nil
	}

	// Any other failure (persistence) still warrants an ack: success here
	// means "accepted by the server" (live-delivered or durably
	// persisted), not "read by the recipient".
	if err != nil {
		h.log.Errorf("route failed: %v", err)
	}
	return h.registry.SendTo(state.Identity, wire.MessageDelivered{Success: err == nil})
}
