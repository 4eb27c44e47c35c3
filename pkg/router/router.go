// Package router implements the two-path message delivery decision: send
// live to an authenticated recipient session, or durably persist for later
// drain.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/pion/logging"

	"github.com/duskrelay/whisperd/pkg/session"
	"github.com/duskrelay/whisperd/pkg/store"
	"github.com/duskrelay/whisperd/pkg/wire"
)

// postLoginDrainDelay gives a freshly logged-in client time to finish any
// local login-UI transition before a burst of queued messages arrives.
// Ergonomic, not load-bearing for correctness.
const postLoginDrainDelay = 100 * time.Millisecond

// PendingQueue is the persistence surface Router needs from pkg/store.
type PendingQueue interface {
	Append(ctx context.Context, recipientPubkey, senderPubkey, senderEncPubkey, ciphertext []byte) error
	Drain(ctx context.Context, recipientPubkey []byte, deliver func(store.Envelope) error) error
}

// EncKeyResolver resolves a signing key to its advertised encryption key,
// needed to stamp an outbound MessageReceived.
type EncKeyResolver interface {
	ResolveEncPubkey(ctx context.Context, signingPubkey [wire.SigningPubkeySize]byte) ([]byte, error)
}

// Router implements the live-delivery-or-persist decision and the
// post-login pending drain.
type Router struct {
	registry *session.Registry
	pending  PendingQueue
	users    EncKeyResolver
	log      logging.LeveledLogger
}

// NewRouter creates a Router over registry, pending, and users.
func NewRouter(registry *session.Registry, pending PendingQueue, users EncKeyResolver, loggerFactory logging.LoggerFactory) *Router {
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("router")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("router")
	}

	return &Router{registry: registry, pending: pending, users: users, log: log}
}

// Route delivers ciphertext from sender to recipient: live, if recipient
// holds an authenticated session, or persisted for later drain otherwise.
// An unauthenticated-but-present session and an absent session are treated
// identically: both persist. A live-send I/O error is also treated as
// offline; the connection teardown that follows will remove the dead
// session.
func (r *Router) Route(ctx context.Context, sender [wire.SigningPubkeySize]byte, recipient [wire.SigningPubkeySize]byte, ciphertext []byte) error {
	senderEnc, err := r.users.ResolveEncPubkey(ctx, sender)
	if err != nil {
		return err
	}

	// An absent session and a present-but-unauthenticated one are treated
	// identically: persist. MessageReceived is itself a packet variant
	// the registry's authentication gate would let through, so the
	// decision has to be made here rather than by inspecting send_to's
	// result.
	if r.registry.IsAuthenticated(recipient[:]) {
		sendErr := r.registry.SendTo(recipient[:], wire.MessageReceived{
			SenderPubkey:    sender,
			SenderEncPubkey: senderEnc,
			Ciphertext:      ciphertext,
		})
		if sendErr == nil {
			return nil
		}
		if !errors.Is(sendErr, session.ErrNotFound) {
			r.log.Debugf("live delivery failed, treating recipient as offline: %v", sendErr)
		}
	}

	return r.pending.Append(ctx, recipient[:], sender[:], senderEnc, ciphertext)
}

// DeliverPending drains the recipient's pending queue, shortly after
// login, sending each envelope as MessageReceived in FIFO order. The drain
// runs inside a store transaction: a send failure partway through aborts
// and leaves every envelope, sent or not, still queued, so nothing is
// lost, at the cost of possible redelivery on the next login.
func (r *Router) DeliverPending(ctx context.Context, recipient [wire.SigningPubkeySize]byte) error {
	select {
	case <-time.After(postLoginDrainDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return r.pending.Drain(ctx, recipient[:], func(e store.Envelope) error {
		return r.registry.SendTo(recipient[:], wire.MessageReceived{
			SenderPubkey:    pubkeyArray(e.SenderPubkey),
			SenderEncPubkey: e.SenderEncPubkey,
			Ciphertext:      e.Ciphertext,
		})
	})
}

func pubkeyArray(b []byte) [wire.SigningPubkeySize]byte {
	var out [wire.SigningPubkeySize]byte
	copy(out[:], b)
	return out
}
