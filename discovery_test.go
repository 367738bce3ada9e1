package lidnet

import (
	"testing"

	"github.com/relaynet/lidnet/bitbuf"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryResponsePayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := discoveryResponsePayload{PeerUID: 0x1234, Data: []byte("server-name")}
	encodeDiscoveryResponse(b, p)
	require.Equal(t, p, decodeDiscoveryResponse(b))
}

func TestNatPunchRequestPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := natPunchRequestPayload{TargetUID: 99887766}
	encodeNatPunchRequest(b, p)
	require.Equal(t, p, decodeNatPunchRequest(b))
}

func TestNatIntroductionPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := natIntroductionPayload{PeerAddr: "203.0.113.5:4321", PeerUID: 555}
	encodeNatIntroduction(b, p)
	require.Equal(t, p, decodeNatIntroduction(b))
}

func TestNatConfirmPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := natConfirmPayload{Nonce: 0xdeadbeef}
	encodeNatConfirm(b, p)
	require.Equal(t, p, decodeNatConfirm(b))
}

func TestNatPunchPayloadRoundTrip(t *testing.T) {
	b := bitbuf.New(0)
	p := natPunchPayload{FromUID: 42}
	encodeNatPunch(b, p)
	require.Equal(t, p, decodeNatPunch(b))
}

func TestSetDiscoverableTogglesFlag(t *testing.T) {
	p := &Peer{}
	p.SetDiscoverable([]byte("hello"))
	require.True(t, p.discoverable)
	require.Equal(t, []byte("hello"), p.discoverableData)

	p.SetDiscoverable(nil)
	require.False(t, p.discoverable)
}
