package connection

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/duskrelay/whisperd/pkg/session"
)

// Listener accepts connections on a TCP address and runs a Loop for each.
type Listener struct {
	addr          string
	registry      *session.Registry
	dispatch      Dispatcher
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
}

// NewListener creates a Listener bound to addr.
func NewListener(addr string, registry *session.Registry, dispatch Dispatcher, loggerFactory logging.LoggerFactory) *Listener {
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("listener")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("listener")
	}

	return &Listener{addr: addr, registry: registry, dispatch: dispatch, loggerFactory: loggerFactory, log: log}
}

// Serve accepts connections until ctx is cancelled, running each on its
// own goroutine. It stops accepting immediately on cancellation and gives
// in-flight loops shutdownGrace to exit before returning.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return l.awaitShutdown(&wg)
			default:
				l.log.Errorf("accept failed: %v", err)
				return err
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			loop := NewLoop(conn, l.registry, l.dispatch, l.loggerFactory)
			loop.Run(ctx)
		}()
	}
}

// awaitShutdown waits for in-flight connection loops to exit, up to
// shutdownGrace, then returns regardless.
func (l *Listener) awaitShutdown(wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		l.log.Warnf("shutdown grace period elapsed with connection loops still running")
	}
	return nil
}
