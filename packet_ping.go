package mqttbus

import (
	"fmt"
	"io"
)

// encodeEmpty writes a packet that consists of the fixed header only.
func encodeEmpty(w io.Writer, packetType PacketType) (int, error) {
	header := FixedHeader{
		PacketType: packetType,
	}
	return header.Encode(w)
}

// decodeEmpty checks the fixed header of a packet without a body.
func decodeEmpty(header FixedHeader, packetType PacketType) error {
	if header.PacketType != packetType {
		return ErrInvalidPacketType
	}
	if header.Flags != 0x00 {
		return ErrInvalidPacketFlags
	}
	if header.RemainingLength != 0 {
		return fmt.Errorf("%s must not carry a body, got %d bytes", packetType, header.RemainingLength)
	}
	return nil
}

// PingreqPacket represents an MQTT PINGREQ packet.
type PingreqPacket struct{}

// Type returns the packet type.
func (p *PingreqPacket) Type() PacketType { return PacketPINGREQ }

// Encode writes the packet to the writer.
func (p *PingreqPacket) Encode(w io.Writer) (int, error) {
	return encodeEmpty(w, PacketPINGREQ)
}

// Decode reads the packet from the reader.
func (p *PingreqPacket) Decode(_ io.Reader, header FixedHeader) (int, error) {
	return 0, decodeEmpty(header, PacketPINGREQ)
}

// Validate validates the packet contents.
func (p *PingreqPacket) Validate() error {
	return nil
}

// PingrespPacket represents an MQTT PINGRESP packet.
type PingrespPacket struct{}

// Type returns the packet type.
func (p *PingrespPacket) Type() PacketType { return PacketPINGRESP }

// Encode writes the packet to the writer.
func (p *PingrespPacket) Encode(w io.Writer) (int, error) {
	return encodeEmpty(w, PacketPINGRESP)
}

// Decode reads the packet from the reader.
func (p *PingrespPacket) Decode(_ io.Reader, header FixedHeader) (int, error) {
	return 0, decodeEmpty(header, PacketPINGRESP)
}

// Validate validates the packet contents.
func (p *PingrespPacket) Validate() error {
	return nil
}
