package mqttbus

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewDiagnosticWriter(&buf)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	events := []DiagnosticEvent{
		{Timestamp: ts, Kind: DiagnosticDeliveryFailed, SubscriberID: "s1", Topic: "a/b", Filter: "a/+", Error: "boom"},
		{Timestamp: ts, Kind: DiagnosticMalformedPacket, Error: "malformed", RemoteAddr: "127.0.0.1:1883"},
	}
	for _, e := range events {
		require.NoError(t, w.Record(e))
	}

	got, err := ReadDiagnostics(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i := range events {
		assert.True(t, events[i].Timestamp.Equal(got[i].Timestamp))
		got[i].Timestamp = events[i].Timestamp
	}
	assert.Equal(t, events, got)
}

func TestDiagnosticWriterIntegerKeys(t *testing.T) {
	var buf bytes.Buffer
	w := NewDiagnosticWriter(&buf)
	require.NoError(t, w.Record(DiagnosticEvent{Kind: DiagnosticDeliveryPanic, Topic: "topic-name"}))

	// field names never appear on the wire
	assert.NotContains(t, buf.String(), "Topic")
	assert.Contains(t, buf.String(), "topic-name")
}

func TestDiagnosticWriterErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	w := NewDiagnosticWriter(&buf)

	d := NewDispatcher[string](WithErrorHandler(w.ErrorHandler()))
	sub := NewSubscriber(func(string, string) error { return errors.New("rejected") })
	require.NoError(t, d.Subscribe(sub, "orders/+"))
	require.NoError(t, d.Subscribe(NewSubscriber(func(string, string) error { panic("crash") }), "#"))

	d.Publish("orders/1", "m")

	events, err := ReadDiagnostics(&buf)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, DiagnosticDeliveryFailed, events[0].Kind)
	assert.Equal(t, sub.ID(), events[0].SubscriberID)
	assert.Equal(t, "orders/1", events[0].Topic)
	assert.Equal(t, "orders/+", events[0].Filter)
	assert.Equal(t, "rejected", events[0].Error)

	assert.Equal(t, DiagnosticDeliveryPanic, events[1].Kind)
	assert.Equal(t, "crash", events[1].Error)
}

func TestDiagnosticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.cbor")

	w, err := OpenDiagnosticFile(path)
	require.NoError(t, err)
	require.NoError(t, w.Record(DiagnosticEvent{Kind: DiagnosticMalformedPacket, Error: "first"}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	// records after close are dropped
	require.NoError(t, w.Record(DiagnosticEvent{Kind: DiagnosticMalformedPacket, Error: "dropped"}))

	// reopening appends
	w, err = OpenDiagnosticFile(path)
	require.NoError(t, err)
	require.NoError(t, w.Record(DiagnosticEvent{Kind: DiagnosticMalformedPacket, Error: "second"}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	events, err := ReadDiagnostics(f)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Error)
	assert.Equal(t, "second", events[1].Error)
}

func TestReadDiagnosticsCorrupt(t *testing.T) {
	_, err := ReadDiagnostics(bytes.NewReader([]byte{0xFF, 0x00}))
	assert.Error(t, err)
}

func TestDiagnosticKindString(t *testing.T) {
	assert.Equal(t, "DELIVERY_FAILED", DiagnosticDeliveryFailed.String())
	assert.Equal(t, "DELIVERY_PANIC", DiagnosticDeliveryPanic.String())
	assert.Equal(t, "MALFORMED_PACKET", DiagnosticMalformedPacket.String())
	assert.Equal(t, "UNKNOWN(9)", DiagnosticKind(9).String())
}
