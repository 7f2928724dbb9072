package mqttbus

import (
	"bytes"
	"errors"
	"io"
)

// SubackFailure is the SUBACK return code for a rejected subscription.
const SubackFailure byte = 0x80

// ErrInvalidSubackCode is returned for SUBACK return codes other than 0, 1, 2 and 0x80.
var ErrInvalidSubackCode = errors.New("invalid SUBACK return code")

// SubackPacket represents an MQTT SUBACK packet.
type SubackPacket struct {
	PacketID    uint16
	ReturnCodes []byte
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType { return PacketSUBACK }

// GetPacketID returns the packet identifier.
func (p *SubackPacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubackPacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
func (p *SubackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}
	buf.Write(p.ReturnCodes)

	header := FixedHeader{
		PacketType:      PacketSUBACK,
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet from the reader.
func (p *SubackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBACK {
		return 0, ErrInvalidPacketType
	}

	id, n, err := decodeUint16(r)
	if err != nil {
		return n, err
	}
	p.PacketID = id

	remaining := int(header.RemainingLength) - n
	if remaining <= 0 {
		return n, ErrNoTopicFilters
	}

	p.ReturnCodes = make([]byte, remaining)
	n2, err := io.ReadFull(r, p.ReturnCodes)
	n += n2
	if err != nil {
		return n, unexpectedEOF(err)
	}

	return n, p.Validate()
}

// Validate validates the packet contents.
func (p *SubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.ReturnCodes) == 0 {
		return ErrNoTopicFilters
	}
	for _, code := range p.ReturnCodes {
		if code > 2 && code != SubackFailure {
			return ErrInvalidSubackCode
		}
	}
	return nil
}
