package ingest

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/vitalvas/mqttbus"
)

// ALPN is the application protocol negotiated on QUIC connections.
const ALPN = "mqtt"

// ErrTLSRequired is returned when TLS configuration is required but not provided.
var ErrTLSRequired = errors.New("TLS configuration is required for QUIC")

// QUICConn is one bidirectional QUIC stream and its connection.
// It implements net.Conn.
type QUICConn struct {
	conn   *quic.Conn
	stream *quic.Stream
	mu     sync.Mutex
	closed bool
}

// Read reads data from the QUIC stream.
func (c *QUICConn) Read(b []byte) (int, error) {
	return c.stream.Read(b)
}

// Write writes data to the QUIC stream.
func (c *QUICConn) Write(b []byte) (int, error) {
	return c.stream.Write(b)
}

// Close closes the stream and the connection. Repeated calls return nil.
func (c *QUICConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.stream.Close(); err != nil {
		_ = c.conn.CloseWithError(0, "")
		return err
	}
	return c.conn.CloseWithError(0, "")
}

// LocalAddr returns the local network address.
func (c *QUICConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *QUICConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines.
func (c *QUICConn) SetDeadline(t time.Time) error {
	if err := c.stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.stream.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *QUICConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *QUICConn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}

var _ net.Conn = (*QUICConn)(nil)

// withQUICDefaults enforces TLS 1.3 and the MQTT ALPN, cloning the config
// only when it has to change.
func withQUICDefaults(tlsConfig *tls.Config) *tls.Config {
	if tlsConfig.MinVersion < tls.VersionTLS13 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.MinVersion = tls.VersionTLS13
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{ALPN}
	}
	return tlsConfig
}

// DialQUIC connects to address and opens the stream packets are written to.
// A nil tlsConfig uses TLS 1.3 with system roots.
func DialQUIC(ctx context.Context, address string, tlsConfig *tls.Config, quicConfig *quic.Config) (*QUICConn, error) {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	tlsConfig = withQUICDefaults(tlsConfig)

	conn, err := quic.DialAddr(ctx, address, tlsConfig, quicConfig)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}

	return &QUICConn{
		conn:   conn,
		stream: stream,
	}, nil
}

// QUICListener accepts MQTT connections over QUIC.
type QUICListener struct {
	listener *quic.Listener
}

// NewQUICListener creates a QUIC listener. TLS configuration is required.
func NewQUICListener(addr string, tlsConfig *tls.Config, quicConfig *quic.Config) (*QUICListener, error) {
	if tlsConfig == nil {
		return nil, ErrTLSRequired
	}

	listener, err := quic.ListenAddr(addr, withQUICDefaults(tlsConfig), quicConfig)
	if err != nil {
		return nil, err
	}

	return &QUICListener{
		listener: listener,
	}, nil
}

// Accept waits for the next connection and its first stream.
// The stream becomes visible once the peer writes to it.
func (l *QUICListener) Accept(ctx context.Context) (*QUICConn, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "failed to accept stream")
		return nil, err
	}

	return &QUICConn{
		conn:   conn,
		stream: stream,
	}, nil
}

// Close closes the QUIC listener.
func (l *QUICListener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *QUICListener) Addr() net.Addr {
	return l.listener.Addr()
}

// ServeQUIC accepts connections from l and runs an Ingester for each one
// until ctx is cancelled. Open connections are closed on return.
// It returns nil when ctx is cancelled and the accept error otherwise.
func ServeQUIC(ctx context.Context, l *QUICListener, d *mqttbus.Dispatcher[*mqttbus.Message], opts ...Option) error {
	proto := New(d, opts...)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()

			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()

			ing := proto.forConn(conn.RemoteAddr().String())
			if err := ing.Serve(ctx, conn); err != nil && ctx.Err() == nil {
				ing.logger.Debug("connection closed with error", mqttbus.LogFields{
					mqttbus.LogFieldRemoteAddr: ing.remoteAddr,
					mqttbus.LogFieldError:      err.Error(),
				})
			}
		}()
	}
}
