// Package delta implements the copy/insert delta encoding used by git
// to store similar objects as a diff against a base object.
// http://git.rsbx.net/Documents/Git_Data_Formats.txt
//
// A delta stream starts with two base-128 varints holding the size of
// the source (base) and of the target, followed by a list of
// instructions. An instruction byte with its MSB set is a copy from
// the base, an instruction byte with its MSB unset is an insert of
// that many literal bytes taken from the delta stream itself.
// The byte 0x00 is not a valid instruction
package delta

import "errors"

var (
	// ErrVarintTooLong is an error thrown when a varint spans more
	// than 10 bytes, which cannot happen on a well-formed stream
	// since 10 bytes already overflow an uint64
	ErrVarintTooLong = errors.New("delta: varint spans too many bytes")

	// ErrVarintTruncated is an error thrown when a varint stops
	// before a byte without a continuation bit was seen
	ErrVarintTruncated = errors.New("delta: truncated varint")

	// ErrSourceSizeMismatch is an error thrown when the source size
	// declared by a delta doesn't match the actual base object
	ErrSourceSizeMismatch = errors.New("delta: source size doesn't match base")

	// ErrTargetSizeMismatch is an error thrown when applying all the
	// instructions didn't produce exactly the declared target size
	ErrTargetSizeMismatch = errors.New("delta: result doesn't match target size")

	// ErrOutOfBounds is an error thrown when a copy instruction
	// reads outside the base object or writes past the target size
	ErrOutOfBounds = errors.New("delta: copy out of bounds")

	// ErrInvalidInstruction is an error thrown when an instruction
	// byte is 0x00, or when an instruction is truncated
	ErrInvalidInstruction = errors.New("delta: invalid instruction")
)

const (
	// maxVarintLen is the maximum number of bytes a varint may span.
	// 10 groups of 7 bits are enough to hold any uint64, so anything
	// longer is malformed
	maxVarintLen = 10

	// maxInsertLen is the maximum number of literal bytes a single
	// insert instruction can carry (the length lives in the 7 low
	// bits of the instruction byte)
	maxInsertLen = 127

	// copySizeZero is the value a copy instruction with no size bytes
	// stands for. This special case is part of the wire format and
	// must not be changed
	copySizeZero = 65536

	// copySizeMax is the largest size a copy instruction can encode
	// in its 3 size bytes, and so the most bytes a single
	// instruction can emit
	copySizeMax = 1<<24 - 1
)

// ParseVarint reads a base-128 varint from the front of data.
// The value is stored little-endian in groups of 7 bits, the MSB of
// each byte telling whether another byte follows
func ParseVarint(data []byte) (value uint64, bytesRead int, err error) {
	for i, b := range data {
		if i == maxVarintLen {
			return 0, 0, ErrVarintTooLong
		}
		value |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, ErrVarintTruncated
}

// EncodeVarint appends the base-128 varint representation of value
// to dst
func EncodeVarint(dst []byte, value uint64) []byte {
	for value >= 0x80 {
		dst = append(dst, byte(value)|0x80)
		value >>= 7
	}
	return append(dst, byte(value))
}
