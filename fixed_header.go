package mqttbus

import (
	"errors"
	"fmt"
	"io"
)

// PacketType represents an MQTT control packet type.
type PacketType byte

// MQTT 3.1.1 control packet types.
const (
	PacketCONNECT     PacketType = 1
	PacketCONNACK     PacketType = 2
	PacketPUBLISH     PacketType = 3
	PacketPUBACK      PacketType = 4
	PacketPUBREC      PacketType = 5
	PacketPUBREL      PacketType = 6
	PacketPUBCOMP     PacketType = 7
	PacketSUBSCRIBE   PacketType = 8
	PacketSUBACK      PacketType = 9
	PacketUNSUBSCRIBE PacketType = 10
	PacketUNSUBACK    PacketType = 11
	PacketPINGREQ     PacketType = 12
	PacketPINGRESP    PacketType = 13
	PacketDISCONNECT  PacketType = 14
	PacketReserved    PacketType = 15
)

// Direction describes which peer is allowed to send a packet type.
type Direction byte

const (
	// DirectionReserved marks packet types that must not be sent.
	DirectionReserved Direction = iota
	// DirectionClientToServer marks packets sent by clients only.
	DirectionClientToServer
	// DirectionServerToClient marks packets sent by servers only.
	DirectionServerToClient
	// DirectionBoth marks packets either peer may send.
	DirectionBoth
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionClientToServer:
		return "client-to-server"
	case DirectionServerToClient:
		return "server-to-client"
	case DirectionBoth:
		return "both"
	default:
		return "reserved"
	}
}

type packetTypeInfo struct {
	name        string
	direction   Direction
	flags       byte
	description string
}

// packetTypes is indexed by the 4-bit packet type discriminant.
var packetTypes = [16]packetTypeInfo{
	0:                 {"RESERVED", DirectionReserved, 0x00, "Reserved"},
	PacketCONNECT:     {"CONNECT", DirectionClientToServer, 0x00, "Client request to connect to server"},
	PacketCONNACK:     {"CONNACK", DirectionServerToClient, 0x00, "Connect acknowledgment"},
	PacketPUBLISH:     {"PUBLISH", DirectionBoth, 0x00, "Publish message"},
	PacketPUBACK:      {"PUBACK", DirectionBoth, 0x00, "Publish acknowledgment"},
	PacketPUBREC:      {"PUBREC", DirectionBoth, 0x00, "Publish received (assured delivery part 1)"},
	PacketPUBREL:      {"PUBREL", DirectionBoth, 0x02, "Publish release (assured delivery part 2)"},
	PacketPUBCOMP:     {"PUBCOMP", DirectionBoth, 0x00, "Publish complete (assured delivery part 3)"},
	PacketSUBSCRIBE:   {"SUBSCRIBE", DirectionClientToServer, 0x02, "Client subscribe request"},
	PacketSUBACK:      {"SUBACK", DirectionServerToClient, 0x00, "Subscribe acknowledgment"},
	PacketUNSUBSCRIBE: {"UNSUBSCRIBE", DirectionClientToServer, 0x02, "Unsubscribe request"},
	PacketUNSUBACK:    {"UNSUBACK", DirectionServerToClient, 0x00, "Unsubscribe acknowledgment"},
	PacketPINGREQ:     {"PINGREQ", DirectionClientToServer, 0x00, "PING request"},
	PacketPINGRESP:    {"PINGRESP", DirectionServerToClient, 0x00, "PING response"},
	PacketDISCONNECT:  {"DISCONNECT", DirectionClientToServer, 0x00, "Client is disconnecting"},
	PacketReserved:    {"RESERVED", DirectionReserved, 0x00, "Forbidden"},
}

// String returns the string representation of the packet type.
func (p PacketType) String() string {
	if p > PacketReserved {
		return "UNKNOWN"
	}
	return packetTypes[p].name
}

// Direction returns which peer may send the packet type.
func (p PacketType) Direction() Direction {
	if p > PacketReserved {
		return DirectionReserved
	}
	return packetTypes[p].direction
}

// Description returns a human readable description of the packet type.
func (p PacketType) Description() string {
	if p > PacketReserved {
		return ""
	}
	return packetTypes[p].description
}

// Valid returns true if the packet type is valid.
func (p PacketType) Valid() bool {
	return p >= PacketCONNECT && p <= PacketDISCONNECT
}

// Fixed header errors.
var (
	ErrInvalidPacketType  = errors.New("invalid packet type")
	ErrInvalidPacketFlags = errors.New("invalid packet flags")
)

// FixedHeader represents the fixed header of an MQTT control packet.
type FixedHeader struct {
	PacketType      PacketType
	Flags           byte
	RemainingLength uint32
}

// Encode writes the fixed header to the writer.
// Returns the number of bytes written.
func (h *FixedHeader) Encode(w io.Writer) (int, error) {
	if !h.PacketType.Valid() {
		return 0, ErrInvalidPacketType
	}

	length, err := EncodeRemainingLength(h.RemainingLength)
	if err != nil {
		return 0, err
	}

	// First byte: packet type (4 bits) | flags (4 bits)
	buf := make([]byte, 0, 1+len(length))
	buf = append(buf, byte(h.PacketType)<<4|(h.Flags&0x0F))
	buf = append(buf, length...)

	return w.Write(buf)
}

// Decode reads the fixed header from the reader.
// Returns the number of bytes read. A reader that is exhausted before the
// first byte yields io.EOF.
func (h *FixedHeader) Decode(r io.Reader) (int, error) {
	var buf [1]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return n, err
	}

	h.PacketType = PacketType(buf[0] >> 4)
	h.Flags = buf[0] & 0x0F

	if !h.PacketType.Valid() {
		return n, fmt.Errorf("%w: %w: %d", ErrMalformedPacket, ErrInvalidPacketType, h.PacketType)
	}

	length, n2, err := decodeVarint(r)
	n += n2
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: %w", ErrMalformedLength, io.ErrUnexpectedEOF)
		}
		return n, err
	}

	h.RemainingLength = length
	return n, nil
}

// Size returns the encoded size of the fixed header in bytes.
func (h *FixedHeader) Size() int {
	return 1 + RemainingLengthSize(h.RemainingLength)
}

// ValidateFlags validates the flags for the packet type.
// Returns nil if valid, ErrInvalidPacketFlags otherwise.
func (h *FixedHeader) ValidateFlags() error {
	if !h.PacketType.Valid() {
		return ErrInvalidPacketType
	}

	if h.PacketType == PacketPUBLISH {
		// DUP (bit 3), QoS (bits 2-1), RETAIN (bit 0); QoS 3 is forbidden
		if h.QoS() > 2 {
			return ErrInvalidPacketFlags
		}
		return nil
	}

	if h.Flags != packetTypes[h.PacketType].flags {
		return ErrInvalidPacketFlags
	}
	return nil
}

// PUBLISH flag accessors

// DUP returns the DUP flag from PUBLISH packet flags.
func (h *FixedHeader) DUP() bool {
	return h.Flags&0x08 != 0
}

// QoS returns the QoS level from PUBLISH packet flags.
func (h *FixedHeader) QoS() byte {
	return (h.Flags >> 1) & 0x03
}

// Retain returns the RETAIN flag from PUBLISH packet flags.
func (h *FixedHeader) Retain() bool {
	return h.Flags&0x01 != 0
}
