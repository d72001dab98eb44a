package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed fails every pending call when the session is
	// torn down, and rejects new calls on a closed session.
	ErrSessionClosed = errors.New("session: connection closed")

	// ErrCallTimeout is returned by Call.Wait when the caller's
	// context deadline fires before the peer replies. The call stays
	// pending; a late reply is still consumed by the table.
	ErrCallTimeout = errors.New("session: call timed out")
)

// RemoteError reports a failure raised inside the peer's handler
// (a return-error reply). This is an application-level error: the
// method exists, it ran, and it failed.
type RemoteError struct {
	Method string
	Desc   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("epc: remote error in %q: %s", e.Method, e.Desc)
}

// ProtocolError reports that the peer could not dispatch the call at
// all (an epc-error reply), most commonly an unknown method name.
type ProtocolError struct {
	Method string
	Desc   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("epc: protocol error calling %q: %s", e.Method, e.Desc)
}
