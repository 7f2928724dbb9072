package ingest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalvas/mqttbus"
)

func generateTestCertificate(t testing.TB) tls.Certificate {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	return cert
}

func newTestListener(t *testing.T) *QUICListener {
	t.Helper()

	serverTLS := &tls.Config{
		Certificates: []tls.Certificate{generateTestCertificate(t)},
	}

	listener, err := NewQUICListener("127.0.0.1:0", serverTLS, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	return listener
}

func TestQUICDefaults(t *testing.T) {
	t.Run("fills missing values", func(t *testing.T) {
		in := &tls.Config{}
		out := withQUICDefaults(in)

		assert.Equal(t, uint16(tls.VersionTLS13), out.MinVersion)
		assert.Equal(t, []string{ALPN}, out.NextProtos)
		assert.Zero(t, in.MinVersion)
		assert.Empty(t, in.NextProtos)
	})

	t.Run("keeps configured values", func(t *testing.T) {
		in := &tls.Config{MinVersion: tls.VersionTLS13, NextProtos: []string{"custom"}}
		out := withQUICDefaults(in)

		assert.Same(t, in, out)
		assert.Equal(t, []string{"custom"}, out.NextProtos)
	})
}

func TestQUICListener(t *testing.T) {
	t.Run("listener address", func(t *testing.T) {
		listener := newTestListener(t)
		assert.NotNil(t, listener.Addr())
	})

	t.Run("listener requires TLS", func(t *testing.T) {
		_, err := NewQUICListener("127.0.0.1:0", nil, nil)
		assert.ErrorIs(t, err, ErrTLSRequired)
	})

	t.Run("accept honours context", func(t *testing.T) {
		listener := newTestListener(t)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := listener.Accept(ctx)
		assert.Error(t, err)
	})
}

func TestDialQUIC(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := DialQUIC(ctx, "127.0.0.1:1234", &tls.Config{InsecureSkipVerify: true}, nil)
		assert.Error(t, err)
	})

	t.Run("nonexistent server", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := DialQUIC(ctx, "127.0.0.1:59999", &tls.Config{InsecureSkipVerify: true}, nil)
		assert.Error(t, err)
	})
}

func TestServeQUIC(t *testing.T) {
	listener := newTestListener(t)
	d, c := newDispatcher(t, "sensors/+/temperature")

	var connected []string
	connectSeen := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- ServeQUIC(ctx, listener, d, WithConnectHandler(func(p *mqttbus.ConnectPacket) error {
			connected = append(connected, p.ClientID)
			connectSeen <- struct{}{}
			return nil
		}))
	}()

	conn, err := DialQUIC(context.Background(), listener.Addr().String(), &tls.Config{InsecureSkipVerify: true}, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.NotNil(t, conn.LocalAddr())
	assert.NotNil(t, conn.RemoteAddr())
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	packets := []mqttbus.Packet{
		&mqttbus.ConnectPacket{ClientID: "quic-client", CleanSession: true, KeepAlive: 60},
		&mqttbus.PublishPacket{Topic: "sensors/kitchen/temperature", Payload: []byte("21.5")},
		&mqttbus.PublishPacket{Topic: "sensors/kitchen/humidity", Payload: []byte("40")},
		&mqttbus.PublishPacket{Topic: "sensors/garage/temperature", Payload: []byte("12.0"), QoS: 1, PacketID: 1},
	}
	for _, p := range packets {
		_, err := mqttbus.WritePacket(conn, p, 0)
		require.NoError(t, err)
	}

	select {
	case <-connectSeen:
	case <-time.After(5 * time.Second):
		t.Fatal("connect not received")
	}
	assert.Equal(t, []string{"quic-client"}, connected)

	assert.Eventually(t, func() bool {
		return len(c.received()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	msgs := c.received()
	require.Len(t, msgs, 2)
	assert.Equal(t, "sensors/kitchen/temperature", msgs[0].Topic)
	assert.Equal(t, "quic-client", msgs[0].ClientID)
	assert.Equal(t, "sensors/garage/temperature", msgs[1].Topic)
	assert.Equal(t, byte(1), msgs[1].QoS)

	cancel()

	select {
	case err := <-serveDone:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server timed out")
	}
}
