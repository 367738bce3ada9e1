package lidnet

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors surfaced to callers. Compare with errors.Is.
var (
	ErrPeerNotRunning    = errors.New("lidnet: peer is not running")
	ErrPeerAlreadyRun    = errors.New("lidnet: peer already started")
	ErrConnectionClosed  = errors.New("lidnet: connection closed")
	ErrMessageTooBig     = errors.New("lidnet: message exceeds maximum size")
	ErrInvalidChannel    = errors.New("lidnet: invalid channel")
	ErrTimeout           = errors.New("lidnet: read timed out")
	ErrMaxConnections    = errors.New("lidnet: maximum connection count reached")
	ErrTooManyFragments  = errors.New("lidnet: fragment count exceeds protocol limit")
	ErrHandshakeDenied   = errors.New("lidnet: connection denied by application")
	ErrHandshakeTimedOut = errors.New("lidnet: handshake timed out")
	ErrAppIdentMismatch  = errors.New("lidnet: application identifier mismatch")
)

// DisconnectReason describes why a Connection moved to Disconnected, for
// the StatusChanged message and the log callback.
type DisconnectReason string

const (
	ReasonClientInitiated    DisconnectReason = "disconnected"
	ReasonTimedOut           DisconnectReason = "timeout"
	ReasonAppIdentMismatch   DisconnectReason = "app identifier mismatch"
	ReasonServerFull         DisconnectReason = "server full"
	ReasonDeniedByApp        DisconnectReason = "denied by application"
	ReasonHandshakeRetries   DisconnectReason = "handshake retry limit reached"
	ReasonShutdown           DisconnectReason = "peer shutdown"
	ReasonRemoteDisconnected DisconnectReason = "remote disconnected"
)

// handshakeError wraps a handshake-path failure with a stack trace via
// pkg/errors; the hot parse path in the wire/receiver code stays on plain
// fmt.Errorf("%w") since this path is cold and benefits from the extra
// context when Peer.logHandshakeFailure logs it.
func handshakeError(reason DisconnectReason, cause error) error {
	if cause == nil {
		return pkgerrors.Errorf("lidnet: handshake failed: %s", reason)
	}
	return pkgerrors.Wrapf(cause, "lidnet: handshake failed: %s", reason)
}

// ProtocolError reports a malformed or unexpected datagram. These are
// logged and dropped, never fatal to the connection.
type ProtocolError struct {
	Kind string // "header", "fragment", "ack", ...
	Err  error
}

func (e *ProtocolError) Error() string {
	return "lidnet: protocol error (" + e.Kind + "): " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Err }
