package packfile

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/delta"
	"github.com/gitdo/gitdo/ginternals/object"
	"github.com/gitdo/gitdo/internal/cache"
)

const (
	// inflatedCacheEntries bounds the number of inflated objects kept
	// around while walking delta chains
	inflatedCacheEntries = 512
	// inflatedCacheBudget keeps huge blobs from evicting the whole
	// working set of the walk
	inflatedCacheBudget = 4 << 20
)

// Report represents the outcome of a packfile validation.
// Validation is a diagnostic and never fails: every issue found ends
// up in Problems instead of aborting the walk
type Report struct {
	// Valid is true when no problem was found
	Valid bool
	// ObjectCount is the object count declared in the header
	ObjectCount uint32
	// ObjectsParsed is the number of object entries actually walked
	ObjectsParsed uint32
	// Checksum is the SHA1 sum stored in the trailer
	Checksum ginternals.Oid
	// Problems lists everything wrong with the packfile,
	// human-readable
	Problems []string
}

func (r *Report) addProblem(format string, args ...interface{}) {
	r.Valid = false
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// parsedEntry keeps the metadata of an object entry so its data can
// be re-inflated if it fell out of the cache
type parsedEntry struct {
	offset     uint64
	dataStart  int64
	size       uint64
	typ        object.Type
	baseOffset uint64
	baseID     ginternals.Oid
}

// validator carries the state of one Validate call
type validator struct {
	data     []byte
	report   *Report
	entries  map[uint64]*parsedEntry
	byOid    map[ginternals.Oid]*parsedEntry
	inflated *cache.LRU[uint64]
}

// Validate re-parses a generated packfile and reports everything
// wrong with it: bad magic or version, truncated entries, checksum
// mismatch. When walkDeltas is set, every delta chain is resolved and
// applied too, which catches corrupt instruction streams at the cost
// of inflating every object.
// Validate is meant for diagnostics, so it returns a structured
// Report rather than an error
func Validate(data []byte, walkDeltas bool) *Report {
	report := &Report{Valid: true}

	if len(data) < headerSize+ginternals.OidSize {
		report.addProblem("packfile too short: %d bytes", len(data))
		return report
	}
	if !bytes.Equal(data[0:4], packfileMagic()) {
		report.addProblem("%s: got %q", ErrInvalidMagic, data[0:4])
		return report
	}
	if !bytes.Equal(data[4:8], packfileVersion()) {
		report.addProblem("%s: got %v", ErrInvalidVersion, data[4:8])
		return report
	}
	report.ObjectCount = binary.BigEndian.Uint32(data[8:headerSize])

	// The trailer is the SHA1 sum of everything before it
	trailerStart := len(data) - ginternals.OidSize
	report.Checksum, _ = ginternals.NewOidFromHex(data[trailerStart:])
	if sum := sha1.Sum(data[:trailerStart]); !bytes.Equal(sum[:], data[trailerStart:]) {
		report.addProblem("%s: computed %x, trailer has %s", ErrChecksumMismatch, sum, report.Checksum.String())
	}

	inflated, err := cache.NewLRU[uint64](inflatedCacheEntries, inflatedCacheBudget)
	if err != nil {
		report.addProblem("could not create object cache: %s", err)
		return report
	}
	v := &validator{
		data:     data,
		report:   report,
		entries:  map[uint64]*parsedEntry{},
		byOid:    map[ginternals.Oid]*parsedEntry{},
		inflated: inflated,
	}
	v.walk(walkDeltas)
	return report
}

// walk parses every object entry sequentially
func (v *validator) walk(walkDeltas bool) {
	offset := uint64(headerSize)
	end := uint64(len(v.data) - ginternals.OidSize)

	for i := uint32(0); i < v.report.ObjectCount; i++ {
		if offset >= end {
			v.report.addProblem("packfile ends after %d of %d objects", i, v.report.ObjectCount)
			return
		}
		entry, next, err := v.parseEntry(offset)
		if err != nil {
			v.report.addProblem("object %d at offset %d: %s", i, offset, err)
			return
		}
		v.entries[offset] = entry
		v.report.ObjectsParsed++

		if walkDeltas {
			if content, typ, err := v.resolve(entry, 0); err != nil {
				v.report.addProblem("object %d at offset %d: %s", i, offset, err)
			} else {
				v.byOid[object.New(typ, content).ID()] = entry
			}
		}
		offset = next
	}

	if offset != end {
		v.report.addProblem("%d trailing bytes after the last object", end-offset)
	}
}

// parseEntry parses the object entry starting at offset and returns
// it alongside the offset of the next entry
func (v *validator) parseEntry(offset uint64) (*parsedEntry, uint64, error) {
	data := v.data[offset:]

	// The first byte of the header holds the MSB, the type on 3
	// bits, and the low 4 bits of the size; the following bytes hold
	// 7 more bits of size each
	typ := object.Type((data[0] & 0x70) >> 4)
	if !typ.IsValid() {
		return nil, 0, xerrors.Errorf("unknown object type %d", typ)
	}
	size := uint64(data[0] & 0x0f)
	read := 1
	if isMSBSet(data[0]) {
		rest, n, err := readSize(data[1:])
		if err != nil {
			return nil, 0, xerrors.Errorf("couldn't read object size: %w", err)
		}
		size |= rest << 4
		read += n
	}

	entry := &parsedEntry{
		offset: offset,
		typ:    typ,
		size:   size,
	}

	switch typ { //nolint:exhaustive // only the delta types carry a base reference
	case object.ObjectDeltaOFS:
		rel, n, err := readDeltaOffset(data[read:])
		if err != nil {
			return nil, 0, xerrors.Errorf("couldn't read base offset: %w", err)
		}
		if rel > offset {
			return nil, 0, xerrors.Errorf("base offset %d underflows the file", rel)
		}
		entry.baseOffset = offset - rel
		read += n
	case object.ObjectDeltaRef:
		if len(data) < read+ginternals.OidSize {
			return nil, 0, xerrors.Errorf("truncated base oid")
		}
		baseID, err := ginternals.NewOidFromHex(data[read : read+ginternals.OidSize])
		if err != nil {
			return nil, 0, xerrors.Errorf("couldn't read base oid: %w", err)
		}
		entry.baseID = baseID
		read += ginternals.OidSize
	}

	entry.dataStart = int64(offset) + int64(read)
	content, consumed, err := v.inflateAt(entry.dataStart, size)
	if err != nil {
		return nil, 0, err
	}
	v.inflated.Add(offset, content)

	return entry, uint64(entry.dataStart) + uint64(consumed), nil
}

// inflateAt decompresses the zlib stream starting at the given
// position and returns its content alongside the number of compressed
// bytes consumed
func (v *validator) inflateAt(pos int64, expectedSize uint64) ([]byte, int64, error) {
	r := bytes.NewReader(v.data[pos : len(v.data)-ginternals.OidSize])
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, 0, xerrors.Errorf("could not open zlib stream: %w", err)
	}
	defer zr.Close() //nolint:errcheck // the checksum is verified by the read below

	var content bytes.Buffer
	if _, err := io.Copy(&content, zr); err != nil {
		return nil, 0, xerrors.Errorf("could not decompress: %w", err)
	}
	if uint64(content.Len()) != expectedSize {
		return nil, 0, xerrors.Errorf("inflated to %d bytes, header declared %d", content.Len(), expectedSize)
	}

	// bytes.Reader implements io.ByteReader, so zlib didn't read
	// past the end of its stream and the reader's position tells how
	// many compressed bytes the entry spans
	consumed := int64(r.Size()) - int64(r.Len())
	return content.Bytes(), consumed, nil
}

// content returns the inflated (but unresolved) data of an entry,
// going back to the packfile bytes if it fell out of the cache
func (v *validator) content(e *parsedEntry) ([]byte, error) {
	if data, ok := v.inflated.Get(e.offset); ok {
		return data, nil
	}
	data, _, err := v.inflateAt(e.dataStart, e.size)
	if err != nil {
		return nil, err
	}
	v.inflated.Add(e.offset, data)
	return data, nil
}

// resolve returns the fully-resolved content and type of an entry,
// applying its delta chain if needed.
// depth guards against cycles: a chain longer than the number of
// objects in the pack necessarily loops
func (v *validator) resolve(e *parsedEntry, depth int) ([]byte, object.Type, error) {
	if depth > len(v.entries) {
		return nil, 0, ErrDeltaCycle
	}

	content, err := v.content(e)
	if err != nil {
		return nil, 0, err
	}
	if !e.typ.IsDelta() {
		return content, e.typ, nil
	}

	var base *parsedEntry
	var ok bool
	switch e.typ { //nolint:exhaustive // an entry reaching this point is one of the delta types
	case object.ObjectDeltaOFS:
		base, ok = v.entries[e.baseOffset]
		if !ok {
			return nil, 0, xerrors.Errorf("no object at offset %d: %w", e.baseOffset, ErrUnknownBase)
		}
	case object.ObjectDeltaRef:
		base, ok = v.byOid[e.baseID]
		if !ok {
			// A thin pack legitimately references bases the
			// receiver must already have
			return nil, 0, xerrors.Errorf("base %s not in pack (thin pack?): %w", e.baseID.String(), ErrUnknownBase)
		}
	}

	baseContent, baseType, err := v.resolve(base, depth+1)
	if err != nil {
		return nil, 0, err
	}
	resolved, err := delta.Apply(baseContent, content)
	if err != nil {
		return nil, 0, xerrors.Errorf("delta doesn't apply: %w", err)
	}
	return resolved, baseType, nil
}
