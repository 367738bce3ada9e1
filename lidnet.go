// Package lidnet implements a connection-oriented reliable messaging
// engine layered over UDP: per-channel selective-repeat ARQ with
// unreliable/sequenced/ordered delivery variants, fragmentation and
// reassembly of oversize payloads, a connect/disconnect handshake state
// machine, keepalive and RTT-driven resend timing, and adaptive MTU
// discovery.
//
// A Peer owns one UDP endpoint and a single network worker goroutine;
// application goroutines exchange messages with it only through
// concurrent queues (Connect/Send to submit, ReadMessage to receive),
// never by touching connection state directly. That single-writer
// discipline is what lets the sender/receiver channels stay lock-free on
// their hot path.
package lidnet

import "encoding/binary"

var byteOrder = binary.LittleEndian

// protocolVersion isn't written on the wire; Configuration.AppIdentifier
// plays the equivalent role of rejecting an incompatible peer during the
// handshake.
const protocolVersion = 1
