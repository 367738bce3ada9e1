package lidnet

import (
	"net"
	"testing"
	"time"

	"github.com/relaynet/lidnet/bitbuf"
	"github.com/stretchr/testify/require"
)

func connectedPair(t *testing.T, appID string) (server *Peer, client *Peer, serverConn, clientConn *Connection) {
	t.Helper()
	server = newLoopbackPeer(t, appID)
	client = newLoopbackPeer(t, appID)

	var err error
	clientConn, err = client.Connect(server.LocalAddr().String())
	require.NoError(t, err)
	waitForStatus(t, clientConn, StatusConnected, 2*time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conns := server.Connections(); len(conns) == 1 {
			serverConn = conns[0]
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, serverConn)
	waitForStatus(t, serverConn, StatusConnected, 2*time.Second)
	return
}

func TestConnectionSendReliableOrderedDelivers(t *testing.T) {
	server, _, _, clientConn := connectedPair(t, "reliable-data")

	ch := ChannelID{Method: ReliableOrdered, Sub: 0}
	require.NoError(t, clientConn.Send(ch, []byte("hello world")))

	for {
		m, err := server.ReadMessage(2 * time.Second)
		require.NoError(t, err)
		if m.EventType != 0 {
			continue // a StatusChanged release from the handshake
		}
		require.Equal(t, "hello world", string(m.Data.Bytes()))
		require.Equal(t, ch, m.Channel)
		break
	}
}

func TestConnectionSendPreservesOrderAcrossMessages(t *testing.T) {
	server, _, _, clientConn := connectedPair(t, "ordered-data")

	ch := ChannelID{Method: ReliableOrdered, Sub: 3}
	payloads := []string{"one", "two", "three", "four"}
	for _, p := range payloads {
		require.NoError(t, clientConn.Send(ch, []byte(p)))
	}

	var got []string
	for len(got) < len(payloads) {
		m, err := server.ReadMessage(2 * time.Second)
		require.NoError(t, err)
		if m.EventType != 0 {
			continue // a StatusChanged release from the handshake
		}
		got = append(got, string(m.Data.Bytes()))
	}
	require.Equal(t, payloads, got)
}

func TestConnectionSendFragmentsOversizePayload(t *testing.T) {
	server, _, _, clientConn := connectedPair(t, "fragment-data")

	ch := ChannelID{Method: ReliableSequenced, Sub: 2}
	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	require.NoError(t, clientConn.Send(ch, payload))

	for {
		m, err := server.ReadMessage(3 * time.Second)
		require.NoError(t, err)
		if m.EventType != 0 {
			continue
		}
		require.Equal(t, payload, m.Data.Bytes())
		require.Equal(t, fragmentChannel(ch), m.Channel)
		break
	}
}

func TestConnectionDisconnectPropagatesToPeer(t *testing.T) {
	_, _, serverConn, clientConn := connectedPair(t, "disconnect-data")

	clientConn.Disconnect(ReasonClientInitiated)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && serverConn.Status() != StatusDisconnected {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, StatusDisconnected, serverConn.Status())
}

func TestConnectionStatsReflectHandshake(t *testing.T) {
	_, _, _, clientConn := connectedPair(t, "stats-data")
	stats := clientConn.Stats()
	require.Equal(t, StatusConnected, stats.Status)
	require.Greater(t, stats.CurrentMTU, 0)
}

func TestConnectionSendRejectsInvalidChannel(t *testing.T) {
	_, _, _, clientConn := connectedPair(t, "invalid-channel")
	err := clientConn.Send(ChannelID{Method: ReliableUnordered, Sub: 5}, []byte("x"))
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestConnectionRTTSmoothingBlendsSamples(t *testing.T) {
	p := &Peer{config: DefaultConfiguration("rtt-smoothing")}
	c := newConnection(p, &net.UDPAddr{}, true, time.Now())

	send := func(rtt time.Duration) {
		now := time.Now()
		sentAt := now.Add(-rtt)
		c.pingsSent[c.pingSeq] = sentAt
		payload := bitbuf.New(4)
		encodePong(payload, pongPayload{ID: c.pingSeq})
		c.pingSeq++
		c.handleLibrary(now, TypePong, payload)
	}

	send(100 * time.Millisecond)
	require.Equal(t, 100*time.Millisecond, c.avgRTT)

	send(200 * time.Millisecond)
	want := time.Duration(0.7*float64(100*time.Millisecond) + 0.3*float64(200*time.Millisecond))
	require.InDelta(t, float64(want), float64(c.avgRTT), float64(3*time.Millisecond))
}

func TestFragmentChannelAlwaysReliableOrdered(t *testing.T) {
	for _, method := range []DeliveryMethod{Unreliable, UnreliableSequenced, ReliableUnordered, ReliableSequenced, ReliableOrdered} {
		ch := ChannelID{Method: method, Sub: 4}
		got := fragmentChannel(ch)
		require.Equal(t, ReliableOrdered, got.Method)
		require.Equal(t, uint8(4), got.Sub)
	}
}
