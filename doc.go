// Package mqttbus provides MQTT topic matching, an in-process message
// dispatcher and an MQTT 3.1.1 control packet codec.
//
// This package implements the framing and topic rules of the MQTT Version
// 3.1.1 OASIS Standard:
// https://docs.oasis-open.org/mqtt/mqtt/v3.1.1/mqtt-v3.1.1.html
//
// It does not implement the protocol state machine. Acknowledgements,
// retransmission and session persistence belong to a broker or client built
// on top of it.
//
// # Topics
//
// A topic name is split on "/" into a TopicPath. Empty levels are kept, so
// "a//b" has three levels and "" has one empty level. A TopicFilter is
// parsed once and matched against any number of paths:
//
//	f, err := mqttbus.ParseTopicFilter("sensors/+/temperature")
//	f.MatchTopic("sensors/kitchen/temperature") // true
//	f.MatchTopic("sensors/kitchen/humidity")    // false
//
// "+" matches exactly one level, including an empty one. "#" matches the
// remaining levels, including none, so "sport/#" matches "sport".
// ParseTopicFilter tolerates "#" before the last level and stops matching
// there; ValidateTopicFilter and WithStrictFilters reject it.
//
// # Dispatcher
//
// A Dispatcher delivers messages of any type to subscribers whose filters
// match the topic:
//
//	d := mqttbus.NewDispatcher[*mqttbus.Message](
//	    mqttbus.WithLogger(logger),
//	    mqttbus.WithMetrics(metrics),
//	)
//	defer d.Close()
//
//	sub := mqttbus.NewSubscriber(func(topic string, msg *mqttbus.Message) error {
//	    return store(msg)
//	})
//	err := d.Subscribe(sub, "sensors/+/temperature", "alerts/#")
//
//	delivered := d.Publish("alerts/fire", msg)
//
// Each subscriber is called at most once per message, even when several of
// its filters match. A handler that returns an error or panics does not
// affect other subscribers or the publisher. Failures are reported as
// *DeliveryError values to the logger, the metrics collector and the hook
// set with WithErrorHandler.
//
// # Packets
//
// The package provides structs for all MQTT 3.1.1 control packets:
//
//   - ConnectPacket, ConnackPacket: Connection establishment
//   - PublishPacket, PubackPacket, PubrecPacket, PubrelPacket, PubcompPacket: Message delivery
//   - SubscribePacket, SubackPacket: Topic subscription
//   - UnsubscribePacket, UnsubackPacket: Topic unsubscription
//   - PingreqPacket, PingrespPacket: Keep-alive
//   - DisconnectPacket: Connection termination
//
// Use ReadPacket and WritePacket on streams, or DecodePacket and
// EncodePacket on byte slices:
//
//	// Read a packet
//	pkt, n, err := mqttbus.ReadPacket(conn, maxPacketSize)
//
//	// Write a packet
//	n, err := mqttbus.WritePacket(conn, packet, maxPacketSize)
//
// Decoding errors wrap ErrMalformedPacket, or ErrMalformedLength when the
// remaining length itself is invalid. Errors from the underlying reader, other
// than a stream ending mid-packet, are returned as they are.
//
// # Configuration
//
// LoadConfig reads a YAML file:
//
//	log_level: info
//	max_packet_size: 262144
//	strict_filters: false
//	diagnostics:
//	  path: /var/lib/mqttbus/diagnostics.cbor
//
// The diagnostics file collects delivery failures and rejected packets as
// CBOR records; ReadDiagnostics decodes them.
//
// # Extensions
//
// The extensions/ingest package feeds packets read from a connection into a
// dispatcher, with a QUIC listener. The extensions/router package routes
// messages from one subscription to handlers selected by filter and
// message attributes.
package mqttbus
