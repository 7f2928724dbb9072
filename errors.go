package mqttbus

import (
	"errors"
	"fmt"
)

// Sentinel errors for the wire codec - check with errors.Is().
var (
	// ErrMalformedLength is returned when a remaining length field uses more
	// than four bytes or runs past the end of the input.
	ErrMalformedLength = errors.New("mqttbus: malformed remaining length")

	// ErrMalformedPacket is returned when a packet body is truncated, carries
	// invalid field values, or does not match its remaining length.
	ErrMalformedPacket = errors.New("mqttbus: malformed packet")

	// ErrPacketTooLarge is returned when a packet exceeds the configured maximum size.
	ErrPacketTooLarge = errors.New("mqttbus: packet exceeds maximum size")
)

// Sentinel errors for topic handling - check with errors.Is().
var (
	// ErrInvalidFilter is returned when a topic filter cannot be parsed.
	ErrInvalidFilter = errors.New("mqttbus: invalid topic filter")

	// ErrInvalidTopicName is returned when a topic name is not usable for publishing.
	ErrInvalidTopicName = errors.New("mqttbus: invalid topic name")
)

// Sentinel errors for dispatching - check with errors.Is().
var (
	// ErrDispatcherClosed is returned when subscribing on a closed dispatcher.
	ErrDispatcherClosed = errors.New("mqttbus: dispatcher closed")

	// ErrDeliveryFailed is wrapped by every DeliveryError.
	ErrDeliveryFailed = errors.New("mqttbus: delivery failed")

	// ErrNilSubscriber is returned when a nil subscriber is registered.
	ErrNilSubscriber = errors.New("mqttbus: nil subscriber")
)

// malformed tags err as a packet-level decode failure while keeping the
// original cause reachable through errors.Is.
func malformed(field string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrMalformedPacket) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformedPacket, field, err)
}

// invalidFilter reports a rejected topic filter.
func invalidFilter(filter, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrInvalidFilter, filter, reason)
}

// DeliveryError describes a subscriber handler that failed while a message
// was being dispatched. Extract with errors.As().
type DeliveryError struct {
	// SubscriberID is the diagnostic identifier of the failing subscriber.
	SubscriberID string

	// Topic is the topic the message was published to.
	Topic string

	// Filter is the filter that matched the topic.
	Filter string

	// Err is the error returned by the handler, or nil if it panicked.
	Err error

	// Panic holds the recovered value when the handler panicked.
	Panic any
}

func (e *DeliveryError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("delivery to %s on %q panicked: %v", e.SubscriberID, e.Topic, e.Panic)
	}
	return fmt.Sprintf("delivery to %s on %q failed: %v", e.SubscriberID, e.Topic, e.Err)
}

// Unwrap returns ErrDeliveryFailed and the handler error, if any.
func (e *DeliveryError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDeliveryFailed, e.Err}
	}
	return []error{ErrDeliveryFailed}
}
