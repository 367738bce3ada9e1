package lidnet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProtocolErrorUnwrapAndMessage(t *testing.T) {
	cause := errors.New("short buffer")
	pe := &ProtocolError{Kind: "header", Err: cause}

	require.Equal(t, "lidnet: protocol error (header): short buffer", pe.Error())
	require.ErrorIs(t, pe, cause)
}

func TestHandshakeErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := handshakeError(ReasonHandshakeRetries, cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), string(ReasonHandshakeRetries))
}

func TestHandshakeErrorWithoutCause(t *testing.T) {
	err := handshakeError(ReasonServerFull, nil)
	require.Contains(t, err.Error(), string(ReasonServerFull))
}
