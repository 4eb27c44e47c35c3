// Package session implements the per-connection Session record, the
// concurrent SessionRegistry that indexes sessions by identity, and the
// bounded encryption-key side cache.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/duskrelay/whisperd/pkg/wire"
)

// Sink is the write half of a client connection. A Session owns its Sink
// exclusively; no other component writes to it directly.
type Sink interface {
	io.Writer
	io.Closer
}

// Session is the per-connection record described by the design document:
// identity bytes, an exclusively-owned output sink, an authenticated flag
// that only ever transitions false -> true, and a last-activity timestamp
// updated on every successful outbound write.
//
// All mutation goes through Session's own mutex, which also serialises
// writes to the sink. Two concurrent sends to the same Session are
// ordered, but Sessions are independent of one another.
type Session struct {
	mu            sync.Mutex
	identity      []byte
	writer        *wire.StreamWriter
	sink          Sink
	authenticated bool
	lastActivity  time.Time
}

// New creates a Session over sink, initially unauthenticated, with
// last-activity set to now.
func New(identity []byte, sink Sink) *Session {
	return &Session{
		identity:     append([]byte(nil), identity...),
		writer:       wire.NewStreamWriter(sink),
		sink:         sink,
		lastActivity: time.Now(),
	}
}

// Identity returns the session's current identity bytes.
func (s *Session) Identity() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := make([]byte, len(s.identity))
	copy(id, s.identity)
	return id
}

// Authenticated reports whether the session has completed login.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// MarkAuthenticated flips the authenticated flag. Idempotent.
func (s *Session) MarkAuthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
}

// LastActivity returns the timestamp of the most recent successful write.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// rename replaces the session's identity. Only called by Registry.Rename
// while holding the registry's exclusive lock, per the design document's
// recommended rekey sequence.
func (s *Session) rename(newIdentity []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = append([]byte(nil), newIdentity...)
}

// write serialises pkt to the sink and, on success, updates last-activity.
func (s *Session) write(pkt wire.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.WritePacket(pkt); err != nil {
		return err
	}
	s.lastActivity = time.Now()
	return nil
}

// Close closes the session's sink, reclaiming ownership of the underlying
// connection. Called by Registry.Remove.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink.Close()
}
