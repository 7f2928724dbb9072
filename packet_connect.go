package mqttbus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// CONNECT protocol names and levels.
const (
	ProtocolNameMQTT   = "MQTT"
	ProtocolNameMQIsdp = "MQIsdp"
	ProtocolLevel311   = 4
	ProtocolLevel31    = 3
)

// Connect flag bit positions.
const (
	connectFlagReserved     = 0x01
	connectFlagCleanSession = 0x02
	connectFlagWillFlag     = 0x04
	connectFlagWillQoSMask  = 0x18
	connectFlagWillRetain   = 0x20
	connectFlagPasswordFlag = 0x40
	connectFlagUsernameFlag = 0x80
)

// CONNECT packet errors.
var (
	ErrInvalidProtocolName   = errors.New("invalid protocol name")
	ErrInvalidProtocolLevel  = errors.New("unsupported protocol level")
	ErrInvalidConnectFlags   = errors.New("invalid connect flags")
	ErrClientIDRequired      = errors.New("client ID required with clean session false")
	ErrWillTopicRequired     = errors.New("will topic required when will flag is set")
	ErrPasswordWithoutUser   = errors.New("password flag set without username flag")
	ErrInvalidWillQoS        = errors.New("will QoS must be 0, 1 or 2")
	ErrProtocolLevelMismatch = errors.New("protocol level does not match protocol name")
	ErrWillWithoutFlag       = errors.New("will topic or message set without will flag")
)

// ConnectPacket represents an MQTT CONNECT packet.
type ConnectPacket struct {
	// ProtocolName is "MQTT" for 3.1.1 or "MQIsdp" for 3.1.
	// Empty encodes as "MQTT".
	ProtocolName string

	// ProtocolLevel is 4 for 3.1.1 or 3 for 3.1. Zero encodes as 4.
	ProtocolLevel byte

	// ClientID is the client identifier.
	ClientID string

	// CleanSession asks the server to discard any previous session.
	CleanSession bool

	// KeepAlive is the keep alive interval in seconds.
	KeepAlive uint16

	// Will message configuration.
	WillFlag    bool
	WillRetain  bool
	WillQoS     byte
	WillTopic   string
	WillMessage []byte

	// Username for authentication. Sent when UsernameFlag is set or
	// Username is non-empty.
	Username     string
	UsernameFlag bool

	// Password for authentication. Sent when PasswordFlag is set or
	// Password is non-empty.
	Password     []byte
	PasswordFlag bool
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType {
	return PacketCONNECT
}

func (p *ConnectPacket) protocol() (string, byte) {
	name, level := p.ProtocolName, p.ProtocolLevel
	if name == "" {
		name = ProtocolNameMQTT
	}
	if level == 0 {
		level = ProtocolLevel311
		if name == ProtocolNameMQIsdp {
			level = ProtocolLevel31
		}
	}
	return name, level
}

func (p *ConnectPacket) hasUsername() bool {
	return p.UsernameFlag || p.Username != ""
}

func (p *ConnectPacket) hasPassword() bool {
	return p.PasswordFlag || len(p.Password) > 0
}

// ConnectFlags returns the connect flags byte computed from the packet fields.
func (p *ConnectPacket) ConnectFlags() byte {
	var flags byte

	if p.CleanSession {
		flags |= connectFlagCleanSession
	}

	if p.WillFlag {
		flags |= connectFlagWillFlag
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= connectFlagWillRetain
		}
	}

	if p.hasPassword() {
		flags |= connectFlagPasswordFlag
	}

	if p.hasUsername() {
		flags |= connectFlagUsernameFlag
	}

	return flags
}

// setConnectFlags parses the connect flags byte.
func (p *ConnectPacket) setConnectFlags(flags byte) error {
	if flags&connectFlagReserved != 0 {
		return fmt.Errorf("%w: reserved bit set", ErrInvalidConnectFlags)
	}

	p.CleanSession = flags&connectFlagCleanSession != 0
	p.WillFlag = flags&connectFlagWillFlag != 0
	p.WillQoS = (flags & connectFlagWillQoSMask) >> 3
	p.WillRetain = flags&connectFlagWillRetain != 0
	p.UsernameFlag = flags&connectFlagUsernameFlag != 0
	p.PasswordFlag = flags&connectFlagPasswordFlag != 0

	if p.WillQoS > 2 {
		return fmt.Errorf("%w: %w", ErrInvalidConnectFlags, ErrInvalidWillQoS)
	}

	if !p.WillFlag && (p.WillQoS != 0 || p.WillRetain) {
		return fmt.Errorf("%w: will QoS or retain set without will flag", ErrInvalidConnectFlags)
	}

	if p.PasswordFlag && !p.UsernameFlag {
		return fmt.Errorf("%w: %w", ErrInvalidConnectFlags, ErrPasswordWithoutUser)
	}

	return nil
}

// Encode writes the packet to the writer.
func (p *ConnectPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	name, level := p.protocol()

	// Variable header and payload
	var buf bytes.Buffer

	if _, err := encodeString(&buf, name); err != nil {
		return 0, fmt.Errorf("protocol name: %w", err)
	}

	buf.WriteByte(level)
	buf.WriteByte(p.ConnectFlags())

	if _, err := encodeUint16(&buf, p.KeepAlive); err != nil {
		return 0, err
	}

	if _, err := encodeString(&buf, p.ClientID); err != nil {
		return 0, fmt.Errorf("client id: %w", err)
	}

	if p.WillFlag {
		if _, err := encodeString(&buf, p.WillTopic); err != nil {
			return 0, fmt.Errorf("will topic: %w", err)
		}

		if _, err := encodeBinary(&buf, p.WillMessage); err != nil {
			return 0, fmt.Errorf("will message: %w", err)
		}
	}

	if p.hasUsername() {
		if _, err := encodeString(&buf, p.Username); err != nil {
			return 0, fmt.Errorf("username: %w", err)
		}
	}

	if p.hasPassword() {
		if _, err := encodeBinary(&buf, p.Password); err != nil {
			return 0, fmt.Errorf("password: %w", err)
		}
	}

	header := FixedHeader{
		PacketType:      PacketCONNECT,
		Flags:           0x00,
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
func (p *ConnectPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNECT {
		return 0, ErrInvalidPacketType
	}

	var totalRead int

	name, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, malformed("protocol name", err)
	}
	if name != ProtocolNameMQTT && name != ProtocolNameMQIsdp {
		return totalRead, malformed("protocol name", fmt.Errorf("%w: %q", ErrInvalidProtocolName, name))
	}
	p.ProtocolName = name

	level, n, err := decodeByte(r)
	totalRead += n
	if err != nil {
		return totalRead, malformed("protocol level", err)
	}
	if level != ProtocolLevel311 && level != ProtocolLevel31 {
		return totalRead, malformed("protocol level", fmt.Errorf("%w: %d", ErrInvalidProtocolLevel, level))
	}
	if (name == ProtocolNameMQTT) != (level == ProtocolLevel311) {
		return totalRead, malformed("protocol level", ErrProtocolLevelMismatch)
	}
	p.ProtocolLevel = level

	flags, n, err := decodeByte(r)
	totalRead += n
	if err != nil {
		return totalRead, malformed("connect flags", err)
	}
	if err := p.setConnectFlags(flags); err != nil {
		return totalRead, malformed("connect flags", err)
	}

	p.KeepAlive, n, err = decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, malformed("keep alive", err)
	}

	// Payload

	p.ClientID, n, err = decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, malformed("client id", err)
	}

	if p.WillFlag {
		p.WillTopic, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, malformed("will topic", err)
		}

		p.WillMessage, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, malformed("will message", err)
		}
	}

	if p.UsernameFlag {
		p.Username, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, malformed("username", err)
		}
	}

	if p.PasswordFlag {
		p.Password, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, malformed("password", err)
		}
	}

	return totalRead, nil
}

// Validate validates the packet contents.
func (p *ConnectPacket) Validate() error {
	name, level := p.protocol()

	switch {
	case name == ProtocolNameMQTT && level == ProtocolLevel311:
	case name == ProtocolNameMQIsdp && level == ProtocolLevel31:
	case name != ProtocolNameMQTT && name != ProtocolNameMQIsdp:
		return ErrInvalidProtocolName
	default:
		return ErrProtocolLevelMismatch
	}

	if !p.CleanSession && p.ClientID == "" {
		return ErrClientIDRequired
	}

	if p.WillQoS > 2 {
		return ErrInvalidWillQoS
	}

	if !p.WillFlag {
		if p.WillRetain || p.WillQoS != 0 {
			return ErrInvalidConnectFlags
		}
		if p.WillTopic != "" || len(p.WillMessage) > 0 {
			return ErrWillWithoutFlag
		}
	} else if p.WillTopic == "" {
		return ErrWillTopicRequired
	}

	if p.hasPassword() && !p.hasUsername() {
		return ErrPasswordWithoutUser
	}

	return nil
}
