// Package auth implements the challenge-response login handshake: issuing
// single-use nonces and verifying the Ed25519 signatures clients return over
// them.
package auth

import (
	"crypto/rand"
	"sync"

	"github.com/duskrelay/whisperd/pkg/wire"
)

// ChallengeStore is a short-lived mapping from signing public key to a
// freshly generated nonce. A mutex is sufficient; contention is bounded by
// the rate of login attempts, not by connection count.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[[wire.SigningPubkeySize]byte][wire.NonceSize]byte
}

// NewChallengeStore creates an empty ChallengeStore.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		challenges: make(map[[wire.SigningPubkeySize]byte][wire.NonceSize]byte),
	}
}

// Issue generates a fresh nonce for signingPubkey, overwriting any prior
// outstanding challenge for that key.
func (c *ChallengeStore) Issue(signingPubkey [wire.SigningPubkeySize]byte) ([wire.NonceSize]byte, error) {
	var nonce [wire.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, err
	}

	c.mu.Lock()
	c.challenges[signingPubkey] = nonce
	c.mu.Unlock()

	return nonce, nil
}

// Consume atomically removes and returns the outstanding challenge for
// signingPubkey, if any.
func (c *ChallengeStore) Consume(signingPubkey [wire.SigningPubkeySize]byte) ([wire.NonceSize]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, ok := c.challenges[signingPubkey]
	if ok {
		delete(c.challenges, signingPubkey)
	}
	return nonce, ok
}
