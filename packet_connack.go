package mqttbus

import (
	"errors"
	"fmt"
	"io"
)

// ConnectReturnCode is the CONNACK return code.
type ConnectReturnCode byte

// CONNACK return codes.
const (
	ConnectAccepted                   ConnectReturnCode = 0x00
	ConnectRefusedProtocolVersion     ConnectReturnCode = 0x01
	ConnectRefusedIdentifierRejected  ConnectReturnCode = 0x02
	ConnectRefusedServerUnavailable   ConnectReturnCode = 0x03
	ConnectRefusedBadUsernamePassword ConnectReturnCode = 0x04
	ConnectRefusedNotAuthorized       ConnectReturnCode = 0x05
	connectReturnCodeMax              ConnectReturnCode = ConnectRefusedNotAuthorized
)

// ErrInvalidReturnCode is returned for CONNACK return codes above 5.
var ErrInvalidReturnCode = errors.New("invalid connect return code")

// String returns the string representation of the return code.
func (c ConnectReturnCode) String() string {
	switch c {
	case ConnectAccepted:
		return "accepted"
	case ConnectRefusedProtocolVersion:
		return "unacceptable protocol version"
	case ConnectRefusedIdentifierRejected:
		return "identifier rejected"
	case ConnectRefusedServerUnavailable:
		return "server unavailable"
	case ConnectRefusedBadUsernamePassword:
		return "bad username or password"
	case ConnectRefusedNotAuthorized:
		return "not authorized"
	default:
		return "unknown"
	}
}

// ConnackPacket represents an MQTT CONNACK packet.
type ConnackPacket struct {
	SessionPresent bool
	ReturnCode     ConnectReturnCode
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType { return PacketCONNACK }

// Encode writes the packet to the writer.
func (p *ConnackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	header := FixedHeader{
		PacketType:      PacketCONNACK,
		RemainingLength: 2,
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	var ackFlags byte
	if p.SessionPresent {
		ackFlags = 0x01
	}

	n, err := w.Write([]byte{ackFlags, byte(p.ReturnCode)})
	return total + n, err
}

// Decode reads the packet from the reader.
func (p *ConnackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNACK {
		return 0, ErrInvalidPacketType
	}

	var buf [2]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return n, unexpectedEOF(err)
	}

	if buf[0]&0xFE != 0 {
		return n, fmt.Errorf("%w: reserved acknowledge flags set", ErrInvalidPacketFlags)
	}

	p.SessionPresent = buf[0]&0x01 != 0
	p.ReturnCode = ConnectReturnCode(buf[1])

	return n, p.Validate()
}

// Validate validates the packet contents.
func (p *ConnackPacket) Validate() error {
	if p.ReturnCode > connectReturnCodeMax {
		return ErrInvalidReturnCode
	}
	// Session present must be 0 when the connection is refused
	if p.ReturnCode != ConnectAccepted && p.SessionPresent {
		return ErrInvalidPacketFlags
	}
	return nil
}
