/*
Lidnet-echo is a minimal lidnet client/server for exercising the
protocol by hand.

Usage:

	lidnet-echo --listen :4321
	lidnet-echo --dial 127.0.0.1:4321 --message "hello"
*/
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/relaynet/lidnet"
)

func main() {
	listen := pflag.String("listen", "", "run as a server, bound to this address")
	dial := pflag.String("dial", "", "run as a client, connecting to this address")
	appID := pflag.String("app-id", "lidnet-echo", "application identifier both sides must agree on")
	message := pflag.String("message", "hello, lidnet", "message the client sends once connected")
	pflag.Parse()

	if (*listen == "") == (*dial == "") {
		fmt.Fprintln(os.Stderr, "usage: lidnet-echo --listen addr | --dial addr")
		os.Exit(1)
	}

	cfg := lidnet.DefaultConfiguration(*appID)
	cfg.EnabledMessageTypes = lidnet.TypeAll

	if *listen != "" {
		cfg.LocalAddress, cfg.Port = splitHostPort(*listen)
		runServer(cfg)
		return
	}

	cfg.Port = 0
	runClient(cfg, *dial, *message)
}

func runServer(cfg *lidnet.Configuration) {
	peer, err := lidnet.NewPeer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := peer.Start(); err != nil {
		log.Fatal(err)
	}
	log.Print("listening on ", peer.LocalAddr())

	for {
		msg, err := peer.ReadMessage(0)
		if err != nil {
			log.Print(err)
			continue
		}
		handleServerMessage(peer, msg)
		peer.ReleaseMessage(msg)
	}
}

func handleServerMessage(peer *lidnet.Peer, msg *lidnet.IncomingMessage) {
	switch msg.EventType {
	case lidnet.TypeStatusChanged:
		log.Print(msg.From, " status: ", msg.Connection.Status())
		return
	case lidnet.TypeConnectionApproval:
		msg.Connection.Accept(time.Now())
		return
	case 0:
		// data message, handled below
	default:
		return
	}

	echo := append([]byte(nil), msg.Data.Bytes()...)
	log.Printf("%s: %q", msg.From, echo)
	if err := msg.Connection.Send(msg.Channel, echo); err != nil {
		log.Print(err)
	}
}

func runClient(cfg *lidnet.Configuration, dial, message string) {
	peer, err := lidnet.NewPeer(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := peer.Start(); err != nil {
		log.Fatal(err)
	}

	conn, err := peer.Connect(dial)
	if err != nil {
		log.Fatal(err)
	}

	ch := lidnet.ChannelID{Method: lidnet.ReliableOrdered, Sub: 0}

	for {
		msg, err := peer.ReadMessage(5 * time.Second)
		if err != nil {
			log.Fatal("timed out waiting for connection: ", err)
		}
		if msg.EventType == lidnet.TypeStatusChanged && msg.Connection == conn {
			peer.ReleaseMessage(msg)
			if conn.Status() == lidnet.StatusConnected {
				break
			}
			continue
		}
		peer.ReleaseMessage(msg)
	}

	if err := conn.Send(ch, []byte(message)); err != nil {
		log.Fatal(err)
	}

	msg, err := peer.ReadMessage(5 * time.Second)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("reply: %q", msg.Data.Bytes())
	peer.ReleaseMessage(msg)

	conn.Disconnect(lidnet.ReasonClientInitiated)
	peer.Shutdown(lidnet.ReasonShutdown)
}

func splitHostPort(addr string) (host string, port int) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Fatal(err)
	}
	if udpAddr.IP != nil {
		host = udpAddr.IP.String()
	}
	return host, udpAddr.Port
}
