package handler

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/duskrelay/whisperd/pkg/session"
	"github.com/duskrelay/whisperd/pkg/store"
	"github.com/duskrelay/whisperd/pkg/user"
	"github.com/duskrelay/whisperd/pkg/wire"
)

type fakeSink struct{ bytes.Buffer }

func (f *fakeSink) Close() error { return nil }

type fakeAuth struct {
	nonce         [wire.NonceSize]byte
	accepted      bool
	profileExists bool
	marked        [][wire.SigningPubkeySize]byte
}

func (f *fakeAuth) GenerateChallenge([wire.SigningPubkeySize]byte) ([wire.NonceSize]byte, error) {
	return f.nonce, nil
}
func (f *fakeAuth) VerifyLogin([wire.SigningPubkeySize]byte, [wire.SignatureSize]byte) (bool, bool) {
	return f.accepted, f.profileExists
}
func (f *fakeAuth) MarkAuthenticated(pk [wire.SigningPubkeySize]byte) {
	f.marked = append(f.marked, pk)
}

type fakeUsers struct {
	setProfileErr error
	found         *store.UserProfile
	searchErr     error
}

func (f *fakeUsers) SetProfile(context.Context, [wire.SigningPubkeySize]byte, []byte, string, *string, *string) error {
	return f.setProfileErr
}
func (f *fakeUsers) SearchUser(context.Context, string) (*store.UserProfile, error) {
	return f.found, f.searchErr
}

type fakeMessenger struct {
	routeErr error
}

func (f *fakeMessenger) Route(context.Context, [wire.SigningPubkeySize]byte, [wire.SigningPubkeySize]byte, []byte) error {
	return f.routeErr
}
func (f *fakeMessenger) DeliverPending(context.Context, [wire.SigningPubkeySize]byte) error {
	return nil
}

func readOne(t *testing.T, sink *fakeSink) wire.Packet {
	t.Helper()
	r := wire.NewStreamReader(bytes.NewReader(sink.Bytes()))
	pkt, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	return pkt
}

func TestHandler_GetChallenge_SendsChallenge(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	temp := []byte("temp-addr-1")
	reg.Insert(temp, session.New(temp, sink))

	h := New(&fakeAuth{nonce: [wire.NonceSize]byte{1, 2, 3}}, &fakeUsers{}, &fakeMessenger{}, reg, nil)
	state := NewConnectionState(temp)

	var pk [wire.SigningPubkeySize]byte
	if err := h.Dispatch(context.Background(), state, wire.GetChallenge{SigningPubkey: pk}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	got := readOne(t, sink)
	ch, ok := got.(wire.Challenge)
	if !ok {
		t.Fatalf("got %T, want Challenge", got)
	}
	if ch.Nonce != [wire.NonceSize]byte{1, 2, 3} {
		t.Errorf("Nonce = %v, want {1,2,3,...}", ch.Nonce)
	}
}

func TestHandler_LoginRequest_AcceptedRenamesAndAuthenticates(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	temp := []byte("temp-addr-2")
	reg.Insert(temp, session.New(temp, sink))

	auth := &fakeAuth{accepted: true, profileExists: true}
	h := New(auth, &fakeUsers{}, &fakeMessenger{}, reg, nil)
	state := NewConnectionState(temp)

	var pk [wire.SigningPubkeySize]byte
	pk[0] = 42
	if err := h.Dispatch(context.Background(), state, wire.LoginRequest{SigningPubkey: pk}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !bytes.Equal(state.Identity, pk[:]) {
		t.Errorf("state.Identity = %x, want %x", state.Identity, pk[:])
	}
	if len(auth.marked) != 1 || auth.marked[0] != pk {
		t.Error("MarkAuthenticated was not called with the new signing key")
	}

	got := readOne(t, sink)
	lr, ok := got.(wire.LoginResponse)
	if !ok {
		t.Fatalf("got %T, want LoginResponse", got)
	}
	if !lr.Accepted || !lr.ProfileExists {
		t.Errorf("LoginResponse = %+v, want accepted+profileExists", lr)
	}

	if err := reg.SendTo(temp, wire.Challenge{}); err != session.ErrNotFound {
		t.Error("old temporary identity should no longer be registered after rename")
	}
}

func TestHandler_LoginRequest_RejectedDoesNotRename(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	temp := []byte("temp-addr-3")
	reg.Insert(temp, session.New(temp, sink))

	h := New(&fakeAuth{accepted: false}, &fakeUsers{}, &fakeMessenger{}, reg, nil)
	state := NewConnectionState(temp)

	var pk [wire.SigningPubkeySize]byte
	pk[0] = 9
	if err := h.Dispatch(context.Background(), state, wire.LoginRequest{SigningPubkey: pk}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !bytes.Equal(state.Identity, temp) {
		t.Errorf("state.Identity changed on a rejected login: %x", state.Identity)
	}

	got := readOne(t, sink)
	lr := got.(wire.LoginResponse)
	if lr.Accepted {
		t.Error("LoginResponse.Accepted = true on a rejected login")
	}
}

func TestHandler_SetProfile_IgnoredWhileTemporary(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	temp := []byte("temp-addr-4")
	reg.Insert(temp, session.New(temp, sink))

	h := New(&fakeAuth{}, &fakeUsers{}, &fakeMessenger{}, reg, nil)
	state := NewConnectionState(temp)

	if err := h.Dispatch(context.Background(), state, wire.SetProfile{FirstName: "Alice"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if sink.Len() != 0 {
		t.Error("SetProfile on a temporary identity should be silently ignored")
	}
}

func TestHandler_SetProfile_AfterLoginSendsProfileUpdated(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	var pk [wire.SigningPubkeySize]byte
	pk[0] = 5
	reg.Insert(pk[:], session.New(pk[:], sink))

	h := New(&fakeAuth{}, &fakeUsers{}, &fakeMessenger{}, reg, nil)
	state := &ConnectionState{Identity: append([]byte(nil), pk[:]...)}

	if err := h.Dispatch(context.Background(), state, wire.SetProfile{FirstName: "Alice"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	got := readOne(t, sink)
	pu, ok := got.(wire.ProfileUpdated)
	if !ok || !pu.Success {
		t.Errorf("got %+v, want ProfileUpdated{Success: true}", got)
	}
}

func TestHandler_SearchUser_NotFound(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	var pk [wire.SigningPubkeySize]byte
	pk[0] = 6
	reg.Insert(pk[:], session.New(pk[:], sink))

	h := New(&fakeAuth{}, &fakeUsers{searchErr: errNotFound{}}, &fakeMessenger{}, reg, nil)
	state := &ConnectionState{Identity: append([]byte(nil), pk[:]...)}

	if err := h.Dispatch(context.Background(), state, wire.SearchUser{Username: "nobody"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	got := readOne(t, sink)
	if got.Opcode() != wire.OpUserNotFound {
		t.Errorf("opcode = %v, want OpUserNotFound", got.Opcode())
	}
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

func TestHandler_SendMessage_UnprovisionedSenderIsDroppedSilently(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	var pk [wire.SigningPubkeySize]byte
	pk[0] = 8
	reg.Insert(pk[:], session.New(pk[:], sink))

	h := New(&fakeAuth{}, &fakeUsers{}, &fakeMessenger{routeErr: user.ErrNotFound}, reg, nil)
	state := &ConnectionState{Identity: append([]byte(nil), pk[:]...)}

	var recipient [wire.SigningPubkeySize]byte
	if err := h.Dispatch(context.Background(), state, wire.SendMessage{RecipientPubkey: recipient}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if sink.Len() != 0 {
		t.Error("SendMessage from an unprovisioned sender should get no reply at all")
	}
}

func TestHandler_SendMessage_PersistenceFailureStillAcks(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	var pk [wire.SigningPubkeySize]byte
	pk[0] = 9
	reg.Insert(pk[:], session.New(pk[:], sink))

	h := New(&fakeAuth{}, &fakeUsers{}, &fakeMessenger{routeErr: errors.New("db unavailable")}, reg, nil)
	state := &ConnectionState{Identity: append([]byte(nil), pk[:]...)}

	var recipient [wire.SigningPubkeySize]byte
	if err := h.Dispatch(context.Background(), state, wire.SendMessage{RecipientPubkey: recipient}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	got := readOne(t, sink)
	md, ok := got.(wire.MessageDelivered)
	if !ok {
		t.Fatalf("got %T, want MessageDelivered", got)
	}
	if md.Success {
		t.Error("MessageDelivered.Success = true despite a persistence failure")
	}
}

func TestHandler_Ping_RepliesPong(t *testing.T) {
	reg := session.New(nil)
	sink := &fakeSink{}
	temp := []byte("temp-addr-7")
	reg.Insert(temp, session.New(temp, sink))

	h := New(&fakeAuth{}, &fakeUsers{}, &fakeMessenger{}, reg, nil)
	state := NewConnectionState(temp)

	if err := h.Dispatch(context.Background(), state, wire.Ping{}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if readOne(t, sink).Opcode() != wire.OpPong {
		t.Error("Ping did not produce a Pong reply")
	}
}
