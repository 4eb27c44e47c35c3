// Package connection implements the per-accepted-socket lifecycle: a
// placeholder session under a temporary identity, a read/idle/shutdown
// loop, the identity rename on login, and guaranteed session teardown.
package connection

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/duskrelay/whisperd/pkg/handler"
	"github.com/duskrelay/whisperd/pkg/session"
	"github.com/duskrelay/whisperd/pkg/wire"
)

// idleTimeout closes a connection with no successful inbound read for
// this long.
const idleTimeout = 90 * time.Second

// shutdownGrace is how long in-flight connection loops are given to exit
// once cancellation is observed, before the process moves on.
const shutdownGrace = 2 * time.Second

// Dispatcher is the handler.Handler surface Loop needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, state *handler.ConnectionState, pkt wire.Packet) error
}

// connSink is the write half of an accepted connection, owned exclusively
// by the Session registered for it. See the design note on splitting a
// connection's read and write halves at accept time.
type connSink struct {
	conn net.Conn
}

func (s connSink) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s connSink) Close() error                 { return s.conn.Close() }

// Loop owns one accepted socket end to end.
type Loop struct {
	conn      net.Conn
	registry  *session.Registry
	dispatch  Dispatcher
	log       logging.LeveledLogger
	tempIdent []byte

	// connID correlates this loop's log lines across its lifetime. It is
	// a log-only label, never a protocol identity. The registry key is
	// tempIdent (and later the client's signing key), never connID.
	connID uuid.UUID
}

// NewLoop creates a connection loop over a freshly accepted conn.
func NewLoop(conn net.Conn, registry *session.Registry, dispatch Dispatcher, loggerFactory logging.LoggerFactory) *Loop {
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("connection")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("connection")
	}

	return &Loop{
		conn:      conn,
		registry:  registry,
		dispatch:  dispatch,
		log:       log,
		tempIdent: temporaryIdentity(conn),
		connID:    uuid.New(),
	}
}

// temporaryIdentity derives a placeholder registry key from the peer's
// socket address. Its length is address-dependent and can coincidentally
// equal wire.SigningPubkeySize, so login state is tracked explicitly by
// ConnectionState rather than inferred from this key's length.
func temporaryIdentity(conn net.Conn) []byte {
	return []byte("tmp:" + conn.RemoteAddr().String())
}

// Run registers the placeholder session and processes inbound frames
// until the connection closes, an idle timeout fires, or ctx is
// cancelled. It guarantees the session is removed from the registry on
// every exit path.
func (l *Loop) Run(ctx context.Context) {
	l.log.Debugf("[%s] accepted connection from %s", l.connID, l.conn.RemoteAddr())

	sess := session.New(l.tempIdent, connSink{conn: l.conn})
	l.registry.Insert(l.tempIdent, sess)

	state := handler.NewConnectionState(l.tempIdent)

	stopWatchdog := make(chan struct{})
	defer close(stopWatchdog)
	go func() {
		select {
		case <-ctx.Done():
			l.conn.Close()
		case <-stopWatchdog:
		}
	}()

	defer func() { l.registry.Remove(state.Identity) }()

	reader := wire.NewStreamReader(l.conn)

	for {
		if err := l.conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		frame, err := reader.ReadFrame()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Debugf("[%s] connection read ended: %v", l.connID, err)
			}
			return
		}

		pkt, err := wire.Decode(frame)
		if err != nil {
			// A malformed frame is a decode error, not a transport error:
			// log and keep reading, per the connection's decode-error
			// handling.
			l.log.Debugf("[%s] dropping malformed frame: %v", l.connID, err)
			continue
		}

		if err := l.dispatch.Dispatch(ctx, state, pkt); err != nil {
			l.log.Debugf("[%s] dispatch error, closing connection: %v", l.connID, err)
			return
		}
	}
}
