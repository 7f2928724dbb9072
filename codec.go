package mqttbus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// newPacket returns an empty packet for the given type.
func newPacket(t PacketType) (Packet, error) {
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}, nil
	case PacketCONNACK:
		return &ConnackPacket{}, nil
	case PacketPUBLISH:
		return &PublishPacket{}, nil
	case PacketPUBACK:
		return &PubackPacket{}, nil
	case PacketPUBREC:
		return &PubrecPacket{}, nil
	case PacketPUBREL:
		return &PubrelPacket{}, nil
	case PacketPUBCOMP:
		return &PubcompPacket{}, nil
	case PacketSUBSCRIBE:
		return &SubscribePacket{}, nil
	case PacketSUBACK:
		return &SubackPacket{}, nil
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}, nil
	case PacketUNSUBACK:
		return &UnsubackPacket{}, nil
	case PacketPINGREQ:
		return &PingreqPacket{}, nil
	case PacketPINGRESP:
		return &PingrespPacket{}, nil
	case PacketDISCONNECT:
		return &DisconnectPacket{}, nil
	default:
		return nil, fmt.Errorf("%w: %w: %d", ErrMalformedPacket, ErrInvalidPacketType, t)
	}
}

// decodeBody decodes a packet body that has already been read in full.
// The packet must consume exactly header.RemainingLength bytes.
func decodeBody(header FixedHeader, body []byte) (Packet, error) {
	if err := header.ValidateFlags(); err != nil {
		return nil, malformed(header.PacketType.String()+" flags", err)
	}

	packet, err := newPacket(header.PacketType)
	if err != nil {
		return nil, err
	}

	n, err := packet.Decode(bytes.NewReader(body), header)
	if err != nil {
		return nil, malformed(header.PacketType.String(), err)
	}

	if n != len(body) {
		return nil, fmt.Errorf("%w: %s: consumed %d of %d remaining bytes",
			ErrMalformedPacket, header.PacketType, n, len(body))
	}

	return packet, nil
}

// DecodePacket decodes one complete packet from the start of data.
// Returns the packet and the number of bytes consumed, fixed header included.
func DecodePacket(data []byte) (Packet, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedPacket, io.ErrUnexpectedEOF)
	}

	var header FixedHeader
	header.PacketType = PacketType(data[0] >> 4)
	header.Flags = data[0] & 0x0F

	if !header.PacketType.Valid() {
		return nil, 1, fmt.Errorf("%w: %w: %d", ErrMalformedPacket, ErrInvalidPacketType, header.PacketType)
	}

	length, n, err := DecodeRemainingLength(data, 1)
	if err != nil {
		return nil, 1 + n, err
	}
	header.RemainingLength = length

	start := 1 + n
	end := start + int(length)
	if end > len(data) {
		return nil, start, fmt.Errorf("%w: %s: need %d body bytes, have %d: %w",
			ErrMalformedPacket, header.PacketType, length, len(data)-start, io.ErrUnexpectedEOF)
	}

	packet, err := decodeBody(header, data[start:end])
	if err != nil {
		return nil, end, err
	}

	return packet, end, nil
}

// EncodePacket validates and encodes a packet into a new byte slice.
func EncodePacket(packet Packet) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := packet.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadPacket reads a complete MQTT packet from the reader.
// If maxSize is greater than 0, packets with a larger remaining length
// return ErrPacketTooLarge. A reader that ends cleanly between packets
// yields io.EOF. Other read errors are returned unwrapped.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}

	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}

	body := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		rn, err := io.ReadFull(r, body)
		n += rn
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, n, malformed(header.PacketType.String(), io.ErrUnexpectedEOF)
			}
			return nil, n, err
		}
	}

	packet, err := decodeBody(header, body)
	if err != nil {
		return nil, n, err
	}

	return packet, n, nil
}

// WritePacket writes a complete MQTT packet to the writer.
// If maxSize is greater than 0, packets larger than maxSize return ErrPacketTooLarge.
func WritePacket(w io.Writer, packet Packet, maxSize uint32) (int, error) {
	if err := packet.Validate(); err != nil {
		return 0, err
	}

	if maxSize > 0 {
		data, err := EncodePacket(packet)
		if err != nil {
			return 0, err
		}
		if uint32(len(data)) > maxSize {
			return 0, ErrPacketTooLarge
		}
		return w.Write(data)
	}

	return packet.Encode(w)
}
