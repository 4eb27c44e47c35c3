// Package user implements profile publication, lookup, and encryption-key
// resolution against the session registry's cache and the profile store.
package user

import (
	"context"
	"errors"

	"github.com/pion/logging"

	"github.com/duskrelay/whisperd/pkg/session"
	"github.com/duskrelay/whisperd/pkg/store"
	"github.com/duskrelay/whisperd/pkg/wire"
)

// ErrNotFound is returned when a signing key or username has no profile.
var ErrNotFound = errors.New("user: not found")

// ProfileStore is the persistence surface Service needs from pkg/store.
type ProfileStore interface {
	SetProfile(ctx context.Context, signingPubkey, encPubkey []byte, firstName string, username, lastName *string, customAvatar []byte) (*store.UserProfile, error)
	FindByPubkey(ctx context.Context, signingPubkey []byte) (*store.UserProfile, error)
	FindByUsername(ctx context.Context, username string) (*store.UserProfile, error)
}

// Service implements profile publication, lookup by username, and
// encryption-key resolution, consulting the registry's bounded side cache
// before the profile store.
type Service struct {
	store    ProfileStore
	registry *session.Registry
	log      logging.LeveledLogger
}

// NewService creates a user Service over store and registry.
func NewService(profileStore ProfileStore, registry *session.Registry, loggerFactory logging.LoggerFactory) *Service {
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("user")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("user")
	}

	return &Service{store: profileStore, registry: registry, log: log}
}

// SetProfile upserts the caller's profile row, keyed by signingPubkey, and
// refreshes the registry's encryption-key cache on success.
func (s *Service) SetProfile(ctx context.Context, signingPubkey [wire.SigningPubkeySize]byte, encPubkey []byte, firstName string, username, lastName *string) error {
	if _, err := s.store.SetProfile(ctx, signingPubkey[:], encPubkey, firstName, username, lastName, nil); err != nil {
		return err
	}
	s.registry.EncCachePut(signingPubkey[:], encPubkey)
	return nil
}

// SearchUser performs an exact-match username lookup.
func (s *Service) SearchUser(ctx context.Context, username string) (*store.UserProfile, error) {
	profile, err := s.store.FindByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return profile, err
}

// ResolveEncPubkey returns the encryption public key advertised for
// signingPubkey, consulting the registry's cache first and falling back
// to the profile store on a miss.
func (s *Service) ResolveEncPubkey(ctx context.Context, signingPubkey [wire.SigningPubkeySize]byte) ([]byte, error) {
	if cached, ok := s.registry.EncCacheGet(signingPubkey[:]); ok {
		return cached, nil
	}

	profile, err := s.store.FindByPubkey(ctx, signingPubkey[:])
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.registry.EncCachePut(signingPubkey[:], profile.EncryptionPubkey)
	return profile.EncryptionPubkey, nil
}
