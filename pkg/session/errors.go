package session

import "errors"

// Registry and Session errors.
var (
	// ErrNotFound is returned by Registry.SendTo when no session is
	// registered under the given identity.
	ErrNotFound = errors.New("session: not found")

	// ErrNotAuthenticated is returned by Registry.SendTo when the packet
	// variant requires an authenticated session and the target session
	// has not completed login.
	ErrNotAuthenticated = errors.New("session: not authenticated")

	// ErrClosed names the condition of a session whose sink has already
	// been closed. Session.write does not return it: a write after Close
	// returns whatever error the sink itself reports.
	ErrClosed = errors.New("session: closed")
)
