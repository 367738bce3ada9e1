package lidnet

import (
	"fmt"

	"github.com/relaynet/lidnet/bitbuf"
)

// MessageType is the 8-bit tag at the start of every message. Values below libraryTypeCount are library control messages;
// everything else encodes a (DeliveryMethod, sub-channel) pair for user
// payloads.
type MessageType uint8

const (
	TypeConnect MessageType = iota
	TypeConnectResponse
	TypeConnectEstablished
	TypeDisconnect
	TypePing
	TypePong
	TypeExpandMTURequest
	TypeExpandMTUSuccess
	TypeAcknowledge
	TypeDiscoveryRequest
	TypeDiscoveryResponse
	TypeNatIntroduction
	TypeNatIntroductionConfirmRequest
	TypeNatIntroductionConfirmAck
	TypeNatPunchMessage
	TypeNatPunchMessageRequest
	TypeUnconnectedUserMessage

	libraryTypeCount = 32
)

func (t MessageType) String() string {
	switch t {
	case TypeConnect:
		return "Connect"
	case TypeConnectResponse:
		return "ConnectResponse"
	case TypeConnectEstablished:
		return "ConnectEstablished"
	case TypeDisconnect:
		return "Disconnect"
	case TypePing:
		return "Ping"
	case TypePong:
		return "Pong"
	case TypeExpandMTURequest:
		return "ExpandMTURequest"
	case TypeExpandMTUSuccess:
		return "ExpandMTUSuccess"
	case TypeAcknowledge:
		return "Acknowledge"
	case TypeDiscoveryRequest:
		return "DiscoveryRequest"
	case TypeDiscoveryResponse:
		return "DiscoveryResponse"
	case TypeNatIntroduction:
		return "NatIntroduction"
	case TypeNatIntroductionConfirmRequest:
		return "NatIntroductionConfirmRequest"
	case TypeNatIntroductionConfirmAck:
		return "NatIntroductionConfirmAck"
	case TypeNatPunchMessage:
		return "NatPunchMessage"
	case TypeNatPunchMessageRequest:
		return "NatPunchMessageRequest"
	case TypeUnconnectedUserMessage:
		return "UnconnectedUserMessage"
	}
	if t.IsLibrary() {
		return fmt.Sprintf("LibraryType(%d)", uint8(t))
	}
	ch := t.Channel()
	return fmt.Sprintf("Data(%s)", ch)
}

// IsLibrary reports whether t is a library control message rather than a
// user payload type.
func (t MessageType) IsLibrary() bool { return uint8(t) < libraryTypeCount }

// UserMessageType returns the MessageType that identifies user payloads
// sent on the given channel.
func UserMessageType(ch ChannelID) MessageType {
	if !ch.valid() {
		panic(fmt.Sprintf("lidnet: invalid channel: %+v", ch))
	}
	return MessageType(libraryTypeCount + int(ch.Method)*32 + int(ch.Sub))
}

// Channel returns the channel a user-payload MessageType was sent on. It
// panics if called on a library type.
func (t MessageType) Channel() ChannelID {
	if t.IsLibrary() {
		panic("lidnet: Channel called on a library MessageType")
	}
	v := int(t) - libraryTypeCount
	return ChannelID{Method: DeliveryMethod(v / 32), Sub: uint8(v % 32)}
}

// HeaderSize is the fixed 5-byte message header.
const HeaderSize = 5

// AckEntrySize is the wire size of one (channel, sequence) pair inside an
// Acknowledge message payload.
const AckEntrySize = 3

// encodeHeader writes the fixed 5-byte header into buf, which must be at
// least HeaderSize long.
func encodeHeader(buf []byte, typ MessageType, fragment bool, seq Seq, payloadBits uint16) {
	buf[0] = byte(typ)

	var b1 byte
	if fragment {
		b1 = 1
	}
	b1 |= byte(seq&0x7f) << 1
	buf[1] = b1

	buf[2] = byte((seq >> 7) & 0xff)

	byteOrder.PutUint16(buf[3:5], payloadBits)
}

// decodeHeader is the inverse of encodeHeader.
func decodeHeader(buf []byte) (typ MessageType, fragment bool, seq Seq, payloadBits uint16) {
	typ = MessageType(buf[0])
	fragment = buf[1]&1 != 0
	low := Seq(buf[1] >> 1)
	high := Seq(buf[2])
	seq = low | (high << 7)
	payloadBits = byteOrder.Uint16(buf[3:5])
	return
}

// walkMessages parses buf as the concatenation of header+payload messages
// it is on the wire, invoking fn once per message found. If a header's
// declared payload length runs past the bytes remaining in buf, the walk
// stops and invokes onTruncated with the offending type instead of
// misreading the next message's header as payload bytes.
func walkMessages(buf []byte, fn func(typ MessageType, fragment bool, seq Seq, payload []byte), onTruncated func(typ MessageType, wanted, available int)) {
	for len(buf) >= HeaderSize {
		typ, fragment, seq, payloadBits := decodeHeader(buf)
		payloadLen := int((payloadBits + 7) / 8)
		available := len(buf) - HeaderSize
		if payloadLen > available {
			if onTruncated != nil {
				onTruncated(typ, payloadLen, available)
			}
			return
		}
		fn(typ, fragment, seq, buf[HeaderSize:HeaderSize+payloadLen])
		buf = buf[HeaderSize+payloadLen:]
	}
}

// encodeFragmentHeader writes the group id / total-bits / chunk-size /
// chunk-number varint preamble that precedes a fragment's chunk bytes.
func encodeFragmentHeader(b *bitbuf.BitBuffer, groupID, totalBits, chunkByteSize, chunkNumber uint32) {
	b.WriteVarUInt32(groupID)
	b.WriteVarUInt32(totalBits)
	b.WriteVarUInt32(chunkByteSize)
	b.WriteVarUInt32(chunkNumber)
}

// decodeFragmentHeader is the inverse of encodeFragmentHeader.
func decodeFragmentHeader(b *bitbuf.BitBuffer) (groupID, totalBits, chunkByteSize, chunkNumber uint32) {
	groupID = b.ReadVarUInt32()
	totalBits = b.ReadVarUInt32()
	chunkByteSize = b.ReadVarUInt32()
	chunkNumber = b.ReadVarUInt32()
	return
}

// encodeAckEntry appends one (channel, sequence) ack pair to buf.
func encodeAckEntry(buf []byte, ch ChannelID, seq Seq) {
	buf[0] = encodeAckChannel(ch)
	byteOrder.PutUint16(buf[1:3], uint16(seq))
}

// decodeAckEntry decodes one ack pair from the start of buf.
func decodeAckEntry(buf []byte) (ch ChannelID, seq Seq) {
	ch = decodeAckChannel(buf[0])
	seq = Seq(byteOrder.Uint16(buf[1:3]))
	return
}

// encodeAckChannel/decodeAckChannel pack a ChannelID into one byte for
// ack entries: the delivery method never needs more than 3 bits and the
// sub-channel never more than 5.
func encodeAckChannel(ch ChannelID) byte {
	return byte(ch.Method)<<5 | byte(ch.Sub)
}

func decodeAckChannel(b byte) ChannelID {
	return ChannelID{Method: DeliveryMethod(b >> 5), Sub: b & 0x1f}
}
