package session

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pion/logging"

	"github.com/duskrelay/whisperd/pkg/wire"
)

// EncKeyCacheCapacity is the bound on the encryption-key side cache.
const EncKeyCacheCapacity = 10000

// permittedUnauthenticated is the set of packet variants the registry will
// deliver to a session that has not yet completed login.
var permittedUnauthenticated = map[wire.Opcode]struct{}{
	wire.OpChallenge:          {},
	wire.OpLoginResponse:      {},
	wire.OpMessageDelivered:   {},
	wire.OpProfileUpdated:     {},
	wire.OpMessageReceived:    {},
	wire.OpPing:               {},
	wire.OpPong:               {},
	wire.OpSearchUser:         {},
	wire.OpUserFound:          {},
	wire.OpUserNotFound:       {},
}

// Registry is the concurrent mapping from identity bytes to Session.
//
// mu guards the map structure itself (insert, remove, rename, and the
// lookup step of SendTo); each Session additionally guards its own sink
// and fields, so sends to distinct identities proceed concurrently while
// sends to the same identity are serialised on that Session's own lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	encCache *lru.Cache[string, []byte]

	log logging.LeveledLogger
}

// New creates an empty Registry.
func New(loggerFactory logging.LoggerFactory) *Registry {
	cache, err := lru.New[string, []byte](EncKeyCacheCapacity)
	if err != nil {
		// Only returns an error for a non-positive size, which never
		// happens for the compile-time constant above.
		panic(err)
	}

	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("session")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("session")
	}

	return &Registry{
		sessions: make(map[string]*Session),
		encCache: cache,
		log:      log,
	}
}

// Insert adds or replaces the session registered under identity.
func (r *Registry) Insert(identity []byte, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[string(identity)] = s
}

// Remove drops the entry for identity, closing its sink.
// It is a no-op if identity is not present, and is safe to call more than
// once.
func (r *Registry) Remove(identity []byte) {
	r.mu.Lock()
	s, ok := r.sessions[string(identity)]
	if ok {
		delete(r.sessions, string(identity))
	}
	r.mu.Unlock()

	if ok {
		if err := s.Close(); err != nil {
			r.log.Debugf("error closing session sink: %v", err)
		}
	}
}

// SendTo locates the session registered under identity and writes pkt to
// it, subject to the authentication gate described in the design document.
func (r *Registry) SendTo(identity []byte, pkt wire.Packet) error {
	r.mu.RLock()
	s, ok := r.sessions[string(identity)]
	r.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}

	if !s.Authenticated() {
		if _, permitted := permittedUnauthenticated[pkt.Opcode()]; !permitted {
			return ErrNotAuthenticated
		}
	}

	return s.write(pkt)
}

// IsAuthenticated reports whether identity is registered and authenticated.
// Used by the router to decide between live delivery and persistence: an
// absent session and a present-but-unauthenticated session are treated
// identically by the caller.
func (r *Registry) IsAuthenticated(identity []byte) bool {
	r.mu.RLock()
	s, ok := r.sessions[string(identity)]
	r.mu.RUnlock()
	return ok && s.Authenticated()
}

// SetAuthenticated idempotently marks the session under identity as
// authenticated. No-op if identity is not present.
func (r *Registry) SetAuthenticated(identity []byte) {
	r.mu.RLock()
	s, ok := r.sessions[string(identity)]
	r.mu.RUnlock()
	if ok {
		s.MarkAuthenticated()
	}
}

// Rename atomically moves the session registered under old to new. It is a
// no-op if old is not present. Rename holds the registry's exclusive lock
// for its duration, so it is linearisable with respect to SendTo on both
// keys: once Rename returns, SendTo(new, ...) observes the session and
// SendTo(old, ...) does not.
func (r *Registry) Rename(old, new []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[string(old)]
	if !ok {
		return
	}
	delete(r.sessions, string(old))
	s.rename(new)
	r.sessions[string(new)] = s
}

// EncCachePut records the encryption public key advertised for a signing
// public key, evicting the least-recently-used entry if the cache is full.
func (r *Registry) EncCachePut(signingPubkey []byte, encPubkey []byte) {
	r.encCache.Add(string(signingPubkey), append([]byte(nil), encPubkey...))
}

// EncCacheGet returns the cached encryption public key for signingPubkey,
// if present. A miss is not authoritative; the caller should consult the
// profile store.
func (r *Registry) EncCacheGet(signingPubkey []byte) ([]byte, bool) {
	v, ok := r.encCache.Get(string(signingPubkey))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Count returns the number of registered sessions. Exposed for tests and
// diagnostics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
