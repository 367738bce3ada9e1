package lidnet

import (
	"testing"
	"time"

	"github.com/relaynet/lidnet/bitbuf"
	"github.com/stretchr/testify/require"
)

func TestConnectPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := connectPayload{Nonce: 0xabcdef01, AppIdentifier: "myapp/1.0", PeerUID: 0x1122334455667788}
	encodeConnect(b, p)
	require.Equal(t, p, decodeConnect(b))
}

func TestConnectResponsePayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := connectResponsePayload{Nonce: 42, PeerUID: 7}
	encodeConnectResponse(b, p)
	require.Equal(t, p, decodeConnectResponse(b))
}

func TestConnectEstablishedPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := connectEstablishedPayload{Nonce: 99}
	encodeConnectEstablished(b, p)
	require.Equal(t, p, decodeConnectEstablished(b))
}

func TestDisconnectPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := disconnectPayload{Reason: "timed out"}
	encodeDisconnect(b, p)
	require.Equal(t, p, decodeDisconnect(b))
}

func TestPingPongPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	encodePing(b, pingPayload{ID: 5})
	require.Equal(t, pingPayload{ID: 5}, decodePing(b))

	b2 := bitbuf.New(0)
	encodePong(b2, pongPayload{ID: 6})
	require.Equal(t, pongPayload{ID: 6}, decodePong(b2))
}

func TestExpandMTUPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	encodeExpandMTU(b, expandMTUPayload{Size: 1400})
	require.Equal(t, expandMTUPayload{Size: 1400}, decodeExpandMTU(b))
}

func TestHandshakeRetryDoublesBackoff(t *testing.T) {
	now := time.Now()
	r := newHandshakeRetry(10*time.Millisecond, 3, now)

	require.False(t, r.Due(now), "not due immediately after creation")

	require.True(t, r.Due(now.Add(10*time.Millisecond)))
	first := r.nextAt

	require.False(t, r.Due(now.Add(11*time.Millisecond)))
	require.True(t, r.Due(first))
	require.Greater(t, r.nextAt.Sub(first), 10*time.Millisecond, "backoff must grow")
}

func TestHandshakeRetryExhausts(t *testing.T) {
	now := time.Now()
	r := newHandshakeRetry(time.Millisecond, 2, now)

	require.True(t, r.Due(now.Add(time.Millisecond)))
	require.False(t, r.Exhausted())

	t2 := r.nextAt
	require.True(t, r.Due(t2))
	require.True(t, r.Exhausted())

	require.False(t, r.Due(r.nextAt.Add(time.Hour)), "exhausted retry never fires again")
}

func TestConnectionStatusString(t *testing.T) {
	require.Equal(t, "Connected", StatusConnected.String())
	require.Equal(t, "Unknown", ConnectionStatus(250).String())
}
