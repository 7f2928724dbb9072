// Package ingest feeds MQTT 3.1.1 packets read from a byte stream into a
// dispatcher.
//
// An Ingester handles a single connection. It decodes packets in order,
// publishes the application message of every PUBLISH packet and stops at
// the first malformed packet, DISCONNECT or end of stream. It does not
// answer the client: acknowledgements and session state belong to a broker.
package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/vitalvas/mqttbus"
)

// ConnectHandler inspects a CONNECT packet. Returning an error stops the
// ingester with that error.
type ConnectHandler func(*mqttbus.ConnectPacket) error

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger.
func WithLogger(logger mqttbus.Logger) Option {
	return func(i *Ingester) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m mqttbus.Metrics) Option {
	return func(i *Ingester) {
		i.metrics = mqttbus.NewDispatchMetrics(m)
	}
}

// WithMaxPacketSize bounds the remaining length of accepted packets.
// 0 disables the limit.
func WithMaxPacketSize(size uint32) Option {
	return func(i *Ingester) {
		i.maxPacketSize = size
	}
}

// WithConnectHandler sets the CONNECT hook.
func WithConnectHandler(fn ConnectHandler) Option {
	return func(i *Ingester) {
		i.onConnect = fn
	}
}

// WithDiagnostics records rejected packets.
func WithDiagnostics(w *mqttbus.DiagnosticWriter) Option {
	return func(i *Ingester) {
		i.diagnostics = w
	}
}

// WithRemoteAddr labels log lines and diagnostics with the peer address.
func WithRemoteAddr(addr string) Option {
	return func(i *Ingester) {
		i.remoteAddr = addr
	}
}

// Ingester decodes packets from one stream and publishes their messages.
type Ingester struct {
	dispatcher    *mqttbus.Dispatcher[*mqttbus.Message]
	logger        mqttbus.Logger
	metrics       *mqttbus.DispatchMetrics
	diagnostics   *mqttbus.DiagnosticWriter
	onConnect     ConnectHandler
	maxPacketSize uint32
	remoteAddr    string
	clientID      string
}

// New creates an Ingester publishing to d.
func New(d *mqttbus.Dispatcher[*mqttbus.Message], opts ...Option) *Ingester {
	i := &Ingester{
		dispatcher:    d,
		logger:        mqttbus.NewNoOpLogger(),
		metrics:       mqttbus.NewDispatchMetrics(nil),
		maxPacketSize: mqttbus.DefaultMaxPacketSize,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ClientID returns the client identifier from the last CONNECT packet.
func (i *Ingester) ClientID() string {
	return i.clientID
}

// Serve reads packets from r until the stream ends, a DISCONNECT arrives,
// ctx is cancelled, a packet is rejected or reading fails. A clean end of
// stream or a DISCONNECT returns nil. Only rejected packets are recorded as
// malformed.
//
// ctx is checked between packets; a blocked read is interrupted only by
// closing r.
func (i *Ingester) Serve(ctx context.Context, r io.Reader) error {
	logger := i.logger
	if i.remoteAddr != "" {
		logger = logger.WithFields(mqttbus.LogFields{mqttbus.LogFieldRemoteAddr: i.remoteAddr})
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		packet, n, err := mqttbus.ReadPacket(r, i.maxPacketSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if isMalformed(err) {
				i.reject(logger, err, n)
			}
			return err
		}

		i.metrics.PacketDecoded(packet.Type())

		done, err := i.handle(logger, packet)
		if err != nil || done {
			return err
		}
	}
}

func (i *Ingester) handle(logger mqttbus.Logger, packet mqttbus.Packet) (bool, error) {
	switch p := packet.(type) {
	case *mqttbus.ConnectPacket:
		i.clientID = p.ClientID
		logger.Debug("connect received", mqttbus.LogFields{
			mqttbus.LogFieldClientID: p.ClientID,
		})
		if i.onConnect != nil {
			if err := i.onConnect(p); err != nil {
				return true, err
			}
		}

	case *mqttbus.PublishPacket:
		msg := p.ToMessage()
		msg.ClientID = i.clientID
		delivered := i.dispatcher.Publish(p.Topic, msg)
		logger.Debug("message published", mqttbus.LogFields{
			mqttbus.LogFieldTopic: p.Topic,
			mqttbus.LogFieldBytes: len(p.Payload),
			"delivered":           delivered,
		})

	case *mqttbus.DisconnectPacket:
		return true, nil

	default:
		logger.Debug("packet ignored", mqttbus.LogFields{
			mqttbus.LogFieldPacketType: packet.Type().String(),
		})
	}

	return false, nil
}

// isMalformed reports whether err was caused by the bytes on the wire
// rather than by the transport.
func isMalformed(err error) bool {
	return errors.Is(err, mqttbus.ErrMalformedPacket) ||
		errors.Is(err, mqttbus.ErrMalformedLength) ||
		errors.Is(err, mqttbus.ErrPacketTooLarge)
}

func (i *Ingester) reject(logger mqttbus.Logger, err error, n int) {
	i.metrics.PacketMalformed()

	logger.Warn("rejected packet", mqttbus.LogFields{
		mqttbus.LogFieldError: err.Error(),
		mqttbus.LogFieldBytes: n,
	})

	if i.diagnostics != nil {
		_ = i.diagnostics.Record(mqttbus.DiagnosticEvent{
			Timestamp:  time.Now(),
			Kind:       mqttbus.DiagnosticMalformedPacket,
			Error:      err.Error(),
			RemoteAddr: i.remoteAddr,
		})
	}
}

// forConn returns a copy of the ingester for a new connection.
func (i *Ingester) forConn(remoteAddr string) *Ingester {
	c := *i
	c.remoteAddr = remoteAddr
	c.clientID = ""
	return &c
}
