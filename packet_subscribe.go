package mqttbus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrNoTopicFilters is returned by SUBSCRIBE and UNSUBSCRIBE packets without filters.
var ErrNoTopicFilters = errors.New("at least one topic filter required")

// Subscription is a topic filter with its requested QoS.
type Subscription struct {
	TopicFilter string
	QoS         byte
}

// SubscribePacket represents an MQTT SUBSCRIBE packet.
type SubscribePacket struct {
	PacketID      uint16
	Subscriptions []Subscription
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType { return PacketSUBSCRIBE }

// GetPacketID returns the packet identifier.
func (p *SubscribePacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubscribePacket) SetPacketID(id uint16) { p.PacketID = id }

// Filters returns the topic filters of all subscriptions.
func (p *SubscribePacket) Filters() []string {
	filters := make([]string, len(p.Subscriptions))
	for i, sub := range p.Subscriptions {
		filters[i] = sub.TopicFilter
	}
	return filters
}

// Encode writes the packet to the writer.
func (p *SubscribePacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	for _, sub := range p.Subscriptions {
		if _, err := encodeString(&buf, sub.TopicFilter); err != nil {
			return 0, err
		}
		buf.WriteByte(sub.QoS & 0x03)
	}

	header := FixedHeader{
		PacketType:      PacketSUBSCRIBE,
		Flags:           0x02, // SUBSCRIBE must have flags 0x02
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
func (p *SubscribePacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBSCRIBE {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x02 {
		return 0, ErrInvalidPacketFlags
	}

	var totalRead int

	id, n, err := decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if id == 0 {
		return totalRead, ErrInvalidPacketID
	}
	p.PacketID = id

	p.Subscriptions = nil
	for totalRead < int(header.RemainingLength) {
		filter, n, err := decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		if _, err := ParseTopicFilter(filter); err != nil {
			return totalRead, err
		}

		options, n, err := decodeByte(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		// Upper six bits are reserved
		if options&0xFC != 0 {
			return totalRead, fmt.Errorf("%w: reserved subscription option bits", ErrInvalidPacketFlags)
		}
		if options > 2 {
			return totalRead, ErrInvalidQoS
		}

		p.Subscriptions = append(p.Subscriptions, Subscription{
			TopicFilter: filter,
			QoS:         options,
		})
	}

	if len(p.Subscriptions) == 0 {
		return totalRead, ErrNoTopicFilters
	}

	return totalRead, nil
}

// Validate validates the packet contents.
func (p *SubscribePacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.Subscriptions) == 0 {
		return ErrNoTopicFilters
	}
	for _, sub := range p.Subscriptions {
		if _, err := ParseTopicFilter(sub.TopicFilter); err != nil {
			return err
		}
		if sub.QoS > 2 {
			return ErrInvalidQoS
		}
	}
	return nil
}
