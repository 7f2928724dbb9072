package mqttbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Encoding errors.
var (
	ErrStringTooLong           = errors.New("string exceeds maximum length of 65535 bytes")
	ErrBinaryTooLong           = errors.New("binary data exceeds maximum length of 65535 bytes")
	ErrInvalidUTF8             = errors.New("invalid UTF-8 string")
	ErrStringContainsNull      = errors.New("string contains null character")
	ErrRemainingLengthTooLarge = errors.New("remaining length exceeds 268435455")
)

const (
	maxUint16 = 65535

	// MaxRemainingLength is the largest value a four byte remaining length can carry.
	MaxRemainingLength = 268435455

	varintContinueBit = 0x80
	varintValueMask   = 0x7F
	varintMaxBytes    = 4
)

// EncodeRemainingLength encodes n as an MQTT variable length integer.
// Digits are emitted least significant first; every byte except the last
// carries the continuation bit. Zero encodes as a single 0x00 byte.
func EncodeRemainingLength(n uint32) ([]byte, error) {
	if n > MaxRemainingLength {
		return nil, ErrRemainingLengthTooLarge
	}

	buf := make([]byte, 0, varintMaxBytes)
	for {
		digit := byte(n % 128)
		n /= 128
		if n > 0 {
			digit |= varintContinueBit
		}
		buf = append(buf, digit)

		if n == 0 {
			return buf, nil
		}
	}
}

// DecodeRemainingLength decodes a variable length integer from b starting at offset.
// Returns the value and the number of bytes consumed.
func DecodeRemainingLength(b []byte, offset int) (uint32, int, error) {
	if offset < 0 {
		return 0, 0, fmt.Errorf("%w: negative offset %d", ErrMalformedLength, offset)
	}

	var value uint32
	var multiplier uint32 = 1

	for i := range varintMaxBytes {
		pos := offset + i
		if pos >= len(b) {
			return 0, i, fmt.Errorf("%w: %w", ErrMalformedLength, io.ErrUnexpectedEOF)
		}

		encoded := b[pos]
		value += uint32(encoded&varintValueMask) * multiplier

		if encoded&varintContinueBit == 0 {
			return value, i + 1, nil
		}

		multiplier *= 128
	}

	return 0, varintMaxBytes, fmt.Errorf("%w: more than %d bytes", ErrMalformedLength, varintMaxBytes)
}

// RemainingLengthSize returns the number of bytes needed to encode n.
func RemainingLengthSize(n uint32) int {
	switch {
	case n < 128:
		return 1
	case n < 16384:
		return 2
	case n < 2097152:
		return 3
	default:
		return 4
	}
}

// encodeVarint writes a variable length integer to w.
// Returns the number of bytes written.
func encodeVarint(w io.Writer, value uint32) (int, error) {
	buf, err := EncodeRemainingLength(value)
	if err != nil {
		return 0, err
	}
	return w.Write(buf)
}

// decodeVarint reads a variable length integer from r.
// io.EOF is returned untouched when no byte at all could be read; other
// read errors are returned unwrapped.
func decodeVarint(r io.Reader) (uint32, int, error) {
	var value uint32
	var multiplier uint32 = 1
	var buf [1]byte

	for i := range varintMaxBytes {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if i == 0 && errors.Is(err, io.EOF) {
				return 0, 0, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return 0, i, fmt.Errorf("%w: %w", ErrMalformedLength, io.ErrUnexpectedEOF)
			}
			return 0, i, err
		}

		value += uint32(buf[0]&varintValueMask) * multiplier

		if buf[0]&varintContinueBit == 0 {
			return value, i + 1, nil
		}

		multiplier *= 128
	}

	return 0, varintMaxBytes, fmt.Errorf("%w: more than %d bytes", ErrMalformedLength, varintMaxBytes)
}

// encodeString writes a UTF-8 string with 2-byte length prefix to w.
// Returns the number of bytes written.
func encodeString(w io.Writer, s string) (int, error) {
	if len(s) > maxUint16 {
		return 0, ErrStringTooLong
	}

	if !utf8.ValidString(s) {
		return 0, ErrInvalidUTF8
	}

	for i := range len(s) {
		if s[i] == 0 {
			return 0, ErrStringContainsNull
		}
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))

	n, err := w.Write(lenBuf[:])
	if err != nil {
		return n, err
	}

	n2, err := io.WriteString(w, s)
	return n + n2, err
}

// decodeString reads a UTF-8 string with 2-byte length prefix from r.
func decodeString(r io.Reader) (string, int, error) {
	buf, n, err := decodeBinary(r)
	if err != nil {
		return "", n, err
	}

	if !utf8.Valid(buf) {
		return "", n, ErrInvalidUTF8
	}

	for i := range len(buf) {
		if buf[i] == 0 {
			return "", n, ErrStringContainsNull
		}
	}

	return string(buf), n, nil
}

// encodeBinary writes binary data with 2-byte length prefix to w.
// Returns the number of bytes written.
func encodeBinary(w io.Writer, data []byte) (int, error) {
	if len(data) > maxUint16 {
		return 0, ErrBinaryTooLong
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))

	n, err := w.Write(lenBuf[:])
	if err != nil {
		return n, err
	}

	n2, err := w.Write(data)
	return n + n2, err
}

// decodeBinary reads binary data with 2-byte length prefix from r.
// A truncated field is reported as io.ErrUnexpectedEOF.
func decodeBinary(r io.Reader) ([]byte, int, error) {
	var lenBuf [2]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err != nil {
		return nil, n, unexpectedEOF(err)
	}

	length := binary.BigEndian.Uint16(lenBuf[:])
	if length == 0 {
		return nil, n, nil
	}

	buf := make([]byte, length)
	n2, err := io.ReadFull(r, buf)
	n += n2
	if err != nil {
		return nil, n, unexpectedEOF(err)
	}

	return buf, n, nil
}

// encodeUint16 writes v as a big-endian uint16.
func encodeUint16(w io.Writer, v uint16) (int, error) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return w.Write(buf[:])
}

// decodeUint16 reads a big-endian uint16.
func decodeUint16(r io.Reader) (uint16, int, error) {
	var buf [2]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return 0, n, unexpectedEOF(err)
	}
	return binary.BigEndian.Uint16(buf[:]), n, nil
}

// decodeByte reads a single byte.
func decodeByte(r io.Reader) (byte, int, error) {
	var buf [1]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return 0, n, unexpectedEOF(err)
	}
	return buf[0], n, nil
}

// unexpectedEOF maps a clean EOF inside a packet body to io.ErrUnexpectedEOF.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
