package mqttbus

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectPacketEncodeVector(t *testing.T) {
	p := &ConnectPacket{
		ClientID:     "c1",
		CleanSession: true,
		KeepAlive:    60,
		WillFlag:     true,
		WillRetain:   true,
		WillQoS:      1,
		WillTopic:    "w/t",
		WillMessage:  []byte("bye"),
		Username:     "u",
		Password:     []byte("p"),
	}

	expected := []byte{
		0x10, 0x1E,
		0x00, 0x04, 'M', 'Q', 'T', 'T',
		0x04,
		0xEE,
		0x00, 0x3C,
		0x00, 0x02, 'c', '1',
		0x00, 0x03, 'w', '/', 't',
		0x00, 0x03, 'b', 'y', 'e',
		0x00, 0x01, 'u',
		0x00, 0x01, 'p',
	}

	assert.Equal(t, byte(0xEE), p.ConnectFlags())

	var buf bytes.Buffer
	n, err := p.Encode(&buf)
	require.NoError(t, err)
	assert.Equal(t, len(expected), n)
	assert.Equal(t, expected, buf.Bytes())
}

func TestConnectPacketRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		packet ConnectPacket
		flags  byte
	}{
		{
			name:   "minimal",
			packet: ConnectPacket{ClientID: "client", CleanSession: true},
			flags:  0x02,
		},
		{
			name:   "persistent session",
			packet: ConnectPacket{ClientID: "client", KeepAlive: 300},
			flags:  0x00,
		},
		{
			name: "will and credentials",
			packet: ConnectPacket{
				ClientID:     "sensor-17",
				CleanSession: true,
				KeepAlive:    30,
				WillFlag:     true,
				WillQoS:      2,
				WillTopic:    "sensors/17/status",
				WillMessage:  []byte("offline"),
				Username:     "sensor",
				Password:     []byte{0x00, 0x01, 0xFF},
			},
			flags: 0xD6,
		},
		{
			name:   "username only",
			packet: ConnectPacket{ClientID: "c", CleanSession: true, Username: "user"},
			flags:  0x82,
		},
		{
			name:   "empty credentials",
			packet: ConnectPacket{ClientID: "c", CleanSession: true, UsernameFlag: true, PasswordFlag: true},
			flags:  0xC2,
		},
		{
			name:   "will retain qos0",
			packet: ConnectPacket{ClientID: "c", WillFlag: true, WillRetain: true, WillTopic: "t", WillMessage: []byte("m")},
			flags:  0x24,
		},
		{
			name:   "mqtt 3.1",
			packet: ConnectPacket{ProtocolName: ProtocolNameMQIsdp, ProtocolLevel: ProtocolLevel31, ClientID: "legacy", CleanSession: true},
			flags:  0x02,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.flags, tt.packet.ConnectFlags())

			data, err := EncodePacket(&tt.packet)
			require.NoError(t, err)

			// Connect flags follow the protocol name and level
			name, level := tt.packet.protocol()
			flagsOffset := 2 + 2 + len(name) + 1
			assert.Equal(t, tt.flags, data[flagsOffset])
			assert.Equal(t, level, data[flagsOffset-1])

			decoded, n, err := DecodePacket(data)
			require.NoError(t, err)
			assert.Equal(t, len(data), n)

			got, ok := decoded.(*ConnectPacket)
			require.True(t, ok)

			want := tt.packet
			want.ProtocolName, want.ProtocolLevel = name, level
			want.UsernameFlag, want.PasswordFlag = tt.flags&0x80 != 0, tt.flags&0x40 != 0
			assert.Equal(t, &want, got)
			assert.Equal(t, tt.flags, got.ConnectFlags())
		})
	}
}

func TestConnectPacketEmptyCredentials(t *testing.T) {
	data := []byte{
		0x10, 0x11,
		0x00, 0x04, 'M', 'Q', 'T', 'T',
		0x04,
		0xC2,
		0x00, 0x3C,
		0x00, 0x01, 'c',
		0x00, 0x00,
		0x00, 0x00,
	}

	decoded, n, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	p, ok := decoded.(*ConnectPacket)
	require.True(t, ok)
	assert.True(t, p.UsernameFlag)
	assert.True(t, p.PasswordFlag)
	assert.Empty(t, p.Username)
	assert.Empty(t, p.Password)
	assert.Equal(t, byte(0xC2), p.ConnectFlags())

	encoded, err := EncodePacket(p)
	require.NoError(t, err)
	assert.Equal(t, data, encoded)
}

func TestConnectPacketDefaults(t *testing.T) {
	p := &ConnectPacket{ClientID: "c", CleanSession: true}
	name, level := p.protocol()
	assert.Equal(t, ProtocolNameMQTT, name)
	assert.Equal(t, byte(ProtocolLevel311), level)

	p.ProtocolName = ProtocolNameMQIsdp
	_, level = p.protocol()
	assert.Equal(t, byte(ProtocolLevel31), level)
}

func TestConnectPacketValidate(t *testing.T) {
	tests := []struct {
		name    string
		packet  ConnectPacket
		wantErr error
	}{
		{"valid", ConnectPacket{ClientID: "c", CleanSession: true}, nil},
		{"empty client id with clean session", ConnectPacket{CleanSession: true}, nil},
		{"empty client id without clean session", ConnectPacket{}, ErrClientIDRequired},
		{"unknown protocol name", ConnectPacket{ProtocolName: "MQTX", ClientID: "c"}, ErrInvalidProtocolName},
		{"level mismatch", ConnectPacket{ProtocolName: ProtocolNameMQTT, ProtocolLevel: 3, ClientID: "c"}, ErrProtocolLevelMismatch},
		{"will qos 3", ConnectPacket{ClientID: "c", WillFlag: true, WillTopic: "t", WillQoS: 3}, ErrInvalidWillQoS},
		{"will retain without flag", ConnectPacket{ClientID: "c", WillRetain: true}, ErrInvalidConnectFlags},
		{"will topic without flag", ConnectPacket{ClientID: "c", WillTopic: "t"}, ErrWillWithoutFlag},
		{"will flag without topic", ConnectPacket{ClientID: "c", WillFlag: true}, ErrWillTopicRequired},
		{"password without username", ConnectPacket{ClientID: "c", Password: []byte("p")}, ErrPasswordWithoutUser},
		{"password flag without username", ConnectPacket{ClientID: "c", PasswordFlag: true}, ErrPasswordWithoutUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.packet.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = tt.packet.Encode(&bytes.Buffer{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// connectBody builds a CONNECT packet with the given variable header and payload bytes.
func connectBody(body ...byte) []byte {
	return append([]byte{0x10, byte(len(body))}, body...)
}

func TestConnectPacketDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "unknown protocol name",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'X', 0x04, 0x02, 0x00, 0x00, 0x00, 0x00),
			wantErr: ErrInvalidProtocolName,
		},
		{
			name:    "unsupported protocol level",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x05, 0x02, 0x00, 0x00, 0x00, 0x00),
			wantErr: ErrInvalidProtocolLevel,
		},
		{
			name:    "name and level mismatch",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x03, 0x02, 0x00, 0x00, 0x00, 0x00),
			wantErr: ErrProtocolLevelMismatch,
		},
		{
			name:    "reserved flag bit",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x03, 0x00, 0x00, 0x00, 0x00),
			wantErr: ErrInvalidConnectFlags,
		},
		{
			name:    "will qos 3",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x1E, 0x00, 0x00, 0x00, 0x00),
			wantErr: ErrInvalidWillQoS,
		},
		{
			name:    "will retain without will flag",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x22, 0x00, 0x00, 0x00, 0x00),
			wantErr: ErrInvalidConnectFlags,
		},
		{
			name:    "password without username",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x42, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 'p'),
			wantErr: ErrPasswordWithoutUser,
		},
		{
			name:    "truncated keep alive",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x02, 0x00),
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "missing will topic",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x06, 0x00, 0x00, 0x00, 0x00),
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "trailing bytes",
			data:    connectBody(0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x02, 0x00, 0x00, 0x00, 0x00, 0xAA),
			wantErr: ErrMalformedPacket,
		},
		{
			name:    "header flags set",
			data:    []byte{0x11, 0x0C, 0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x02, 0x00, 0x00, 0x00, 0x00},
			wantErr: ErrInvalidPacketFlags,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodePacket(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedPacket)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConnectPacketDecodeWrongType(t *testing.T) {
	var p ConnectPacket
	_, err := p.Decode(bytes.NewReader(nil), FixedHeader{PacketType: PacketPUBLISH})
	assert.ErrorIs(t, err, ErrInvalidPacketType)
}
