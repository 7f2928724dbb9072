package mqttbus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// DiagnosticKind classifies a diagnostic record.
type DiagnosticKind uint8

const (
	// DiagnosticDeliveryFailed records a subscriber that returned an error.
	DiagnosticDeliveryFailed DiagnosticKind = 1
	// DiagnosticDeliveryPanic records a subscriber that panicked.
	DiagnosticDeliveryPanic DiagnosticKind = 2
	// DiagnosticMalformedPacket records a packet rejected by the codec.
	DiagnosticMalformedPacket DiagnosticKind = 3
)

// String returns the kind name.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticDeliveryFailed:
		return "DELIVERY_FAILED"
	case DiagnosticDeliveryPanic:
		return "DELIVERY_PANIC"
	case DiagnosticMalformedPacket:
		return "MALFORMED_PACKET"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// DiagnosticEvent is one diagnostic record.
// CBOR encoding uses integer keys for compactness.
type DiagnosticEvent struct {
	Timestamp    time.Time      `cbor:"1,keyasint"`
	Kind         DiagnosticKind `cbor:"2,keyasint"`
	SubscriberID string         `cbor:"3,keyasint,omitempty"`
	Topic        string         `cbor:"4,keyasint,omitempty"`
	Filter       string         `cbor:"5,keyasint,omitempty"`
	Error        string         `cbor:"6,keyasint,omitempty"`
	RemoteAddr   string         `cbor:"7,keyasint,omitempty"`
}

var (
	diagEncMode cbor.EncMode
	diagDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	diagEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("mqttbus: diagnostics encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}
	diagDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("mqttbus: diagnostics decoder mode: %v", err))
	}
}

// DeliveryEvent converts a delivery failure into a diagnostic record.
func DeliveryEvent(derr *DeliveryError) DiagnosticEvent {
	event := DiagnosticEvent{
		Timestamp:    time.Now(),
		Kind:         DiagnosticDeliveryFailed,
		SubscriberID: derr.SubscriberID,
		Topic:        derr.Topic,
		Filter:       derr.Filter,
	}
	if derr.Panic != nil {
		event.Kind = DiagnosticDeliveryPanic
		event.Error = fmt.Sprint(derr.Panic)
	} else if derr.Err != nil {
		event.Error = derr.Err.Error()
	}
	return event
}

// DiagnosticWriter appends CBOR diagnostic records to a writer.
// It is safe for concurrent use.
type DiagnosticWriter struct {
	mu      sync.Mutex
	w       io.Writer
	encoder *cbor.Encoder
	closed  bool
}

// NewDiagnosticWriter creates a writer that encodes records to w.
func NewDiagnosticWriter(w io.Writer) *DiagnosticWriter {
	return &DiagnosticWriter{
		w:       w,
		encoder: diagEncMode.NewEncoder(w),
	}
}

// OpenDiagnosticFile opens path for appending, creating it if needed.
func OpenDiagnosticFile(path string) (*DiagnosticWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewDiagnosticWriter(f), nil
}

// Record writes one event. Records after Close are dropped.
func (d *DiagnosticWriter) Record(event DiagnosticEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	return d.encoder.Encode(event)
}

// ErrorHandler returns a hook for WithErrorHandler that records each
// delivery failure. Encoding errors are dropped.
func (d *DiagnosticWriter) ErrorHandler() func(*DeliveryError) {
	return func(derr *DeliveryError) {
		_ = d.Record(DeliveryEvent(derr))
	}
}

// Close closes the underlying writer if it is an io.Closer.
// It is safe to call Close multiple times.
func (d *DiagnosticWriter) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if c, ok := d.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadDiagnostics decodes all records from r until EOF.
func ReadDiagnostics(r io.Reader) ([]DiagnosticEvent, error) {
	dec := diagDecMode.NewDecoder(r)

	var events []DiagnosticEvent
	for {
		var event DiagnosticEvent
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, err
		}
		events = append(events, event)
	}
}
