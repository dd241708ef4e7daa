// Package pktline provides support for reading and writing the Git
// pkt-line wire format used by the smart protocols.
// https://git-scm.com/docs/protocol-common#_pkt_line_format
//
// A pkt-line is a 4 hexadecimal digit length (which includes the 4
// digits themselves) followed by the payload. The lengths 0000, 0001,
// and 0002 don't frame a payload and are reserved markers (flush-pkt,
// delim-pkt, and response-end-pkt). The length 0003 is invalid.
package pktline

import (
	"encoding/hex"
	"errors"

	"golang.org/x/xerrors"
)

const (
	// LenSize is the size of the length prefix of a pkt-line, in bytes
	LenSize = 4

	// MaxSize is the maximum total size of a pkt-line, in bytes
	MaxSize = 65520

	// MaxPayloadSize is the maximum size of a pkt-line payload, in bytes
	MaxPayloadSize = MaxSize - LenSize
)

var (
	// ErrTooLong is an error thrown when a payload doesn't fit in a
	// single pkt-line
	ErrTooLong = errors.New("pkt-line too long")

	// ErrInvalidLength is an error thrown when the length prefix of a
	// pkt-line isn't valid hex, is the reserved value 0003, or exceeds
	// MaxSize
	ErrInvalidLength = errors.New("invalid pkt-line length")

	// ErrIncomplete is not a failure: it signals that the buffer
	// doesn't yet contain a full pkt-line and that the caller should
	// retry once more bytes have arrived
	ErrIncomplete = errors.New("incomplete pkt-line")
)

// PacketKind represents the kind of a decoded pkt-line
type PacketKind int8

// List of all the possible packet kinds
const (
	// KindData is a regular pkt-line carrying a payload
	KindData PacketKind = iota
	// KindFlush is the 0000 marker, ending a section of the stream
	KindFlush
	// KindDelimiter is the 0001 marker used by protocol v2
	KindDelimiter
	// KindResponseEnd is the 0002 marker used by protocol v2
	KindResponseEnd
)

func (k PacketKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindFlush:
		return "flush"
	case KindDelimiter:
		return "delimiter"
	case KindResponseEnd:
		return "response-end"
	default:
		return "unknown"
	}
}

// Packet represents a single decoded pkt-line
type Packet struct {
	// Payload contains the bytes framed by the pkt-line.
	// Only set for KindData packets
	Payload []byte
	// Kind is the kind of the packet
	Kind PacketKind
}

// Flush returns the 0000 flush-pkt
func Flush() Packet {
	return Packet{Kind: KindFlush}
}

// Delimiter returns the 0001 delim-pkt
func Delimiter() Packet {
	return Packet{Kind: KindDelimiter}
}

// ResponseEnd returns the 0002 response-end-pkt
func ResponseEnd() Packet {
	return Packet{Kind: KindResponseEnd}
}

// Data returns a regular pkt-line wrapping the given payload
func Data(payload []byte) Packet {
	return Packet{Kind: KindData, Payload: payload}
}

// hexDigits contains the charset used to encode a length prefix.
// Git requires lowercase
const hexDigits = "0123456789abcdef"

// appendLength appends the 4-digit hex representation of n to dst
func appendLength(dst []byte, n int) []byte {
	return append(dst,
		hexDigits[(n>>12)&0xf],
		hexDigits[(n>>8)&0xf],
		hexDigits[(n>>4)&0xf],
		hexDigits[n&0xf],
	)
}

// Encode frames the given payload as a single pkt-line.
// ErrTooLong is returned if the payload exceeds MaxPayloadSize
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, xerrors.Errorf("payload of %d bytes: %w", len(payload), ErrTooLong)
	}
	out := make([]byte, 0, LenSize+len(payload))
	out = appendLength(out, len(payload)+LenSize)
	return append(out, payload...), nil
}

// EncodeString frames the given string as a single pkt-line.
// It behaves like Encode
func EncodeString(payload string) ([]byte, error) {
	return Encode([]byte(payload))
}

// parseLength decodes the 4 hex digit length prefix at the start of
// data. The caller must make sure data holds at least LenSize bytes
func parseLength(data []byte) (int, error) {
	var raw [2]byte
	if _, err := hex.Decode(raw[:], data[:LenSize]); err != nil {
		return 0, xerrors.Errorf("length prefix %q: %w", data[:LenSize], ErrInvalidLength)
	}
	length := int(raw[0])<<8 | int(raw[1])
	// Lengths 0-2 are reserved markers, 3 can frame nothing since the
	// prefix itself is 4 bytes long
	if length == 3 {
		return 0, xerrors.Errorf("length prefix 0003 is reserved: %w", ErrInvalidLength)
	}
	if length > MaxSize {
		return 0, xerrors.Errorf("length %d exceeds the %d bytes limit: %w", length, MaxSize, ErrInvalidLength)
	}
	return length, nil
}

// Decode reads a single pkt-line from the front of buf and returns it
// alongside the number of bytes consumed.
// If buf doesn't yet hold a full pkt-line, ErrIncomplete is returned
// with 0 bytes consumed so the caller can retry with more data
func Decode(buf []byte) (Packet, int, error) {
	if len(buf) < LenSize {
		return Packet{}, 0, ErrIncomplete
	}

	length, err := parseLength(buf)
	if err != nil {
		return Packet{}, 0, err
	}

	switch length {
	case 0:
		return Flush(), LenSize, nil
	case 1:
		return Delimiter(), LenSize, nil
	case 2:
		return ResponseEnd(), LenSize, nil
	}

	if len(buf) < length {
		return Packet{}, 0, ErrIncomplete
	}

	payload := make([]byte, length-LenSize)
	copy(payload, buf[LenSize:length])
	return Data(payload), length, nil
}

// DecodeStream decodes as many pkt-lines as buf holds and returns
// them alongside the leftover bytes. A partial trailing pkt-line is
// not an error: it is simply left in remaining for the next read
func DecodeStream(buf []byte) (packets []Packet, remaining []byte, err error) {
	remaining = buf
	for {
		pkt, n, err := Decode(remaining)
		if errors.Is(err, ErrIncomplete) {
			return packets, remaining, nil
		}
		if err != nil {
			return packets, remaining, err
		}
		packets = append(packets, pkt)
		remaining = remaining[n:]
	}
}
