package lidnet

import "github.com/sirupsen/logrus"

// newDiscardLogger returns a logrus.Logger that drops everything, used
// when Configuration.Logger is left nil so call sites never have to check
// for a nil logger.
func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = discardWriter{}
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// connLogger returns a logger pre-tagged with this connection's remote
// address. Nothing in the package calls it; connection log lines go
// through the Peer's log helpers, which name the remote address in the
// message text.
func (c *Connection) connLogger() *logrus.Entry {
	return c.peer.config.logger().WithField("remote", c.remoteAddr.String())
}
