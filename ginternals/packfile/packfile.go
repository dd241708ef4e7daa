// Package packfile contains methods and structs to generate and
// validate packfiles.
// https://github.com/git/git/blob/master/Documentation/technical/pack-format.txt
package packfile

import (
	"errors"
	"time"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/object"
)

const (
	// headerSize contains the size of the header of a packfile.
	// The first 4 bytes contain the magic, the 4 next bytes contains
	// the version, and the last 4 bytes contains the number of
	// objects in the packfile, for a total of 12 bytes
	headerSize = 12

	// ExtPackfile is the extension of a packfile
	ExtPackfile = ".pack"
)

func packfileMagic() []byte {
	return []byte{'P', 'A', 'C', 'K'}
}

func packfileVersion() []byte {
	return []byte{0, 0, 0, 2}
}

var (
	// ErrIntOverflow is an error thrown when the packfile couldn't
	// be parsed because some data couldn't fit in an int64
	ErrIntOverflow = errors.New("int64 overflow")
	// ErrInvalidMagic is an error thrown when a stream doesn't have
	// the expected magic.
	ErrInvalidMagic = errors.New("invalid magic")
	// ErrInvalidVersion is an error thrown when a stream has an
	// unsupported version
	ErrInvalidVersion = errors.New("invalid version")
	// ErrChecksumMismatch is an error thrown when the SHA1 sum at
	// the end of a packfile doesn't match its content
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrMaxDepthExceeded is an error thrown when a delta chain is
	// deeper than the configured maximum
	ErrMaxDepthExceeded = errors.New("delta chain too deep")
	// ErrDeltaCycle is an error thrown when a delta base transitively
	// depends on the object it's supposed to be the base of
	ErrDeltaCycle = errors.New("delta chain contains a cycle")
	// ErrUnknownBase is an error thrown when a delta references a
	// base that is neither in the pack nor held by the client
	ErrUnknownBase = errors.New("unknown base for delta object")
)

// Packable represents a single object to be written in a packfile
type Packable struct {
	// ID is the oid of the object (content-addressed)
	ID ginternals.Oid
	// Type is the type of the object
	Type object.Type
	// Data is the raw content of the object
	Data []byte
	// Path is the path of the object in the work tree, when known.
	// Only used as an ordering hint
	Path string
	// Timestamp is the commit/authoring time of the object, when
	// known. Only used as an ordering hint
	Timestamp time.Time
}

// Size returns the size of the object's content
func (p *Packable) Size() int {
	return len(p.Data)
}

// Result represents a generated packfile
type Result struct {
	// Bytes contains the whole packfile, trailer included
	Bytes []byte
	// ObjectCount is the number of objects stored in the packfile
	ObjectCount uint32
	// Checksum is the SHA1 sum of header+objects, as appended at the
	// end of the packfile
	Checksum ginternals.Oid
	// MissingBases lists the delta bases that are NOT stored in the
	// packfile. Non-empty only for thin packs, and the pack can only
	// be applied by a client that has all of them
	MissingBases []ginternals.Oid
}

// isMSBSet checks if the MSB of a byte is set to 1.
// The MSB is the first bit on the left
func isMSBSet(b byte) bool {
	return b&0x80 != 0
}

// unsetMSB set the most left bit of the byte to 0
func unsetMSB(b byte) byte {
	return b & 0x7f
}

// readSize reads the provided bytes to extract an object size from an
// object entry header. The chunks are 7 bits each (the MSB tells
// whether the next byte is part of the size too) and little-endian
// encoded
func readSize(data []byte) (size uint64, bytesRead int, err error) {
	for i, b := range data {
		bytesRead++

		// 10 bytes of 7 bits overflow an uint64
		if i >= 10 {
			return 0, 0, ErrIntOverflow
		}
		size |= uint64(unsetMSB(b)) << (7 * i)

		// No more MSB? Then we're done reading the size
		if !isMSBSet(b) {
			return size, bytesRead, nil
		}
	}
	return 0, 0, ErrIntOverflow
}

// writeEntryHeader appends the header of an object entry: the type on
// 3 bits and the size on a variable number of bytes.
// The first byte is [MSB][3 bits: type][4 bits: size], the following
// bytes are [MSB][7 bits: size], the size chunks being little-endian
// encoded
func writeEntryHeader(dst []byte, typ object.Type, size uint64) []byte {
	b := byte(typ&0x7)<<4 | byte(size&0xf)
	size >>= 4
	for size > 0 {
		dst = append(dst, b|0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}
	return append(dst, b)
}

// readDeltaOffset reads the provided bytes to extract the relative
// offset of an ofs-delta base.
// Each byte carries 7 bits of offset (the MSB tells whether the next
// byte is part of the offset too), big-endian encoded, and every
// chunk beside the last one is stored off by one
func readDeltaOffset(data []byte) (offset uint64, bytesRead int, err error) {
	for _, b := range data {
		bytesRead++

		chunk := unsetMSB(b)
		// All the chunks beside the last one are stored with -1
		if isMSBSet(b) {
			chunk++
		}
		offset = offset<<7 | uint64(chunk)

		if !isMSBSet(b) {
			return offset, bytesRead, nil
		}
		if bytesRead == 9 {
			return 0, 0, ErrIntOverflow
		}
	}
	return 0, 0, ErrIntOverflow
}

// writeDeltaOffset appends the negative offset of an ofs-delta base,
// using the inverse encoding of readDeltaOffset
func writeDeltaOffset(dst []byte, offset uint64) []byte {
	// A 64 bits offset spans at most 10 groups of 7 bits
	var buf [10]byte
	i := len(buf) - 1
	buf[i] = byte(offset & 0x7f)
	offset >>= 7
	for offset > 0 {
		offset--
		i--
		buf[i] = byte(offset&0x7f) | 0x80
		offset >>= 7
	}
	return append(dst, buf[i:]...)
}
