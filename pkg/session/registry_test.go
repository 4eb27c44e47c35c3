package session

import (
	"bytes"
	"testing"

	"github.com/duskrelay/whisperd/pkg/wire"
)

type fakeSink struct {
	bytes.Buffer
	closed bool
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestRegistry_SendTo_NotFound(t *testing.T) {
	r := New(nil)
	if err := r.SendTo([]byte("ghost"), wire.Ping{}); err != ErrNotFound {
		t.Errorf("SendTo() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SendTo_GatesUnauthenticated(t *testing.T) {
	r := New(nil)
	identity := []byte("alice")
	s := New(identity, &fakeSink{})
	r.Insert(identity, s)

	if err := r.SendTo(identity, wire.Challenge{}); err != nil {
		t.Errorf("SendTo(Challenge) on unauthenticated session error = %v, want nil", err)
	}

	if err := r.SendTo(identity, wire.GetChallenge{}); err != ErrNotAuthenticated {
		t.Errorf("SendTo(GetChallenge) error = %v, want ErrNotAuthenticated", err)
	}
}

func TestRegistry_SendTo_AuthenticatedAllowsAll(t *testing.T) {
	r := New(nil)
	identity := []byte("alice")
	s := New(identity, &fakeSink{})
	r.Insert(identity, s)
	r.SetAuthenticated(identity)

	if err := r.SendTo(identity, wire.GetChallenge{}); err != nil {
		t.Errorf("SendTo(GetChallenge) on authenticated session error = %v, want nil", err)
	}
}

func TestRegistry_Rename_MovesIdentity(t *testing.T) {
	r := New(nil)
	oldID := []byte("temp-123")
	newID := []byte("pubkey-abc")
	s := New(oldID, &fakeSink{})
	r.Insert(oldID, s)

	r.Rename(oldID, newID)

	if err := r.SendTo(oldID, wire.Challenge{}); err != ErrNotFound {
		t.Errorf("SendTo(old) error = %v, want ErrNotFound", err)
	}
	if err := r.SendTo(newID, wire.Challenge{}); err != nil {
		t.Errorf("SendTo(new) error = %v, want nil", err)
	}
	if got := s.Identity(); !bytes.Equal(got, newID) {
		t.Errorf("Identity() = %q, want %q", got, newID)
	}
}

func TestRegistry_Rename_NoSessionIsNoop(t *testing.T) {
	r := New(nil)
	r.Rename([]byte("missing"), []byte("still-missing"))
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistry_Remove_ClosesSinkAndIsIdempotent(t *testing.T) {
	r := New(nil)
	identity := []byte("alice")
	sink := &fakeSink{}
	r.Insert(identity, New(identity, sink))

	r.Remove(identity)
	if !sink.closed {
		t.Error("Remove() did not close the session sink")
	}

	// Calling Remove again on an already-removed identity must not panic
	// or double-close.
	r.Remove(identity)

	if err := r.SendTo(identity, wire.Ping{}); err != ErrNotFound {
		t.Errorf("SendTo() after Remove() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_EncCache_PutGet(t *testing.T) {
	r := New(nil)
	signing := []byte("signing-key")
	enc := []byte("enc-key")

	if _, ok := r.EncCacheGet(signing); ok {
		t.Fatal("EncCacheGet() hit before any Put")
	}

	r.EncCachePut(signing, enc)

	got, ok := r.EncCacheGet(signing)
	if !ok {
		t.Fatal("EncCacheGet() miss after Put")
	}
	if !bytes.Equal(got, enc) {
		t.Errorf("EncCacheGet() = %q, want %q", got, enc)
	}
}

func TestRegistry_Count(t *testing.T) {
	r := New(nil)
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", r.Count())
	}
	r.Insert([]byte("a"), New([]byte("a"), &fakeSink{}))
	r.Insert([]byte("b"), New([]byte("b"), &fakeSink{}))
	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
	r.Remove([]byte("a"))
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
}
