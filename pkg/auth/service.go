package auth

import (
	"github.com/pion/logging"
	"golang.org/x/crypto/ed25519"

	"github.com/duskrelay/whisperd/pkg/session"
	"github.com/duskrelay/whisperd/pkg/wire"
)

// ProfileChecker reports whether a profile record already exists for a
// signing public key. Implemented by pkg/store.UserStore.
type ProfileChecker interface {
	HasProfile(signingPubkey [wire.SigningPubkeySize]byte) (bool, error)
}

// Service issues login challenges and verifies the signatures returned over
// them. It does not rename sessions: the caller (the connection's packet
// handler) calls VerifyLogin first and, only if the login is accepted,
// renames the session to the claimed signing key and then calls
// MarkAuthenticated.
type Service struct {
	challenges *ChallengeStore
	registry   *session.Registry
	profiles   ProfileChecker
	log        logging.LeveledLogger
}

// NewService creates an authentication Service over the given registry and
// profile checker.
func NewService(registry *session.Registry, profiles ProfileChecker, loggerFactory logging.LoggerFactory) *Service {
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("auth")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("auth")
	}

	return &Service{
		challenges: NewChallengeStore(),
		registry:   registry,
		profiles:   profiles,
		log:        log,
	}
}

// GenerateChallenge issues a fresh nonce for signingPubkey.
func (s *Service) GenerateChallenge(signingPubkey [wire.SigningPubkeySize]byte) ([wire.NonceSize]byte, error) {
	return s.challenges.Issue(signingPubkey)
}

// VerifyLogin consumes the outstanding challenge for signingPubkey and
// checks signature against it. It reports whether the login is accepted
// and, only when accepted, whether a profile record already exists for
// this key.
//
// VerifyLogin does not touch the registry. The caller checks the returned
// accepted flag and, only when it is true, calls Registry.Rename to move
// the session to signingPubkey and then MarkAuthenticated.
func (s *Service) VerifyLogin(signingPubkey [wire.SigningPubkeySize]byte, signature [wire.SignatureSize]byte) (accepted bool, profileExists bool) {
	nonce, ok := s.challenges.Consume(signingPubkey)
	if !ok {
		return false, false
	}

	if !ed25519.Verify(signingPubkey[:], nonce[:], signature[:]) {
		return false, false
	}

	exists, err := s.profiles.HasProfile(signingPubkey)
	if err != nil {
		s.log.Errorf("profile existence check failed for signing key: %v", err)
		return false, false
	}

	return true, exists
}

// MarkAuthenticated flips the authenticated flag on the session currently
// registered under signingPubkey. The caller must have already renamed the
// session to this identity.
func (s *Service) MarkAuthenticated(signingPubkey [wire.SigningPubkeySize]byte) {
	s.registry.SetAuthenticated(signingPubkey[:])
}
