package packfile

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/sha1"
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/object"
	"github.com/gitdo/gitdo/internal/errutil"
)

// Options represents all the knobs of the pack generator.
// The zero value is usable and matches git's defaults
type Options struct {
	// Strategy is the object ordering applied before delta
	// selection. Defaults to StrategyTypeFirst
	Strategy Strategy

	// MaxDeltaDepth bounds the delta chains.
	// Defaults to DefaultMaxDepth
	MaxDeltaDepth int

	// Window is the number of preceding objects tried as delta
	// bases. Defaults to DefaultWindow
	Window int

	// NoDeltas disables delta compression entirely: every object is
	// stored whole
	NoDeltas bool

	// UseOfsDelta stores deltas with an offset to their base instead
	// of the base's oid. Smaller packs, but the client must have
	// advertised the ofs-delta capability
	UseOfsDelta bool

	// ThinBases contains objects the client is known to already
	// have. They may be picked as delta bases without being written
	// in the pack, producing a thin pack; the bases actually used
	// are reported in Result.MissingBases
	ThinBases []Packable

	// CompressionLevel is the zlib level used for the object data.
	// Defaults to zlib.DefaultCompression
	CompressionLevel int

	// BatchSize is the number of objects written between two
	// cancellation checks. Defaults to 256
	BatchSize int
}

func (o *Options) setDefaults() {
	if o.MaxDeltaDepth <= 0 {
		o.MaxDeltaDepth = DefaultMaxDepth
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.CompressionLevel == 0 {
		o.CompressionLevel = zlib.DefaultCompression
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 256
	}
}

// Generate assembles a packfile containing the given objects.
//
// The objects are ordered per opts.Strategy, deltified against each
// other (and against opts.ThinBases, if any), and written with their
// zlib-compressed content behind a 12-byte header; a SHA1 sum of
// everything written is appended as the trailer.
// The objects are processed in batches of opts.BatchSize and ctx is
// checked between batches, so a canceled request doesn't pay for the
// whole pack
func Generate(ctx context.Context, objects []Packable, opts Options) (*Result, error) {
	opts.setDefaults()

	ordered := Order(objects, opts.Strategy)

	chains := map[ginternals.Oid]ChainEntry{}
	if !opts.NoDeltas {
		// The thin bases are prepended so the optimizer can pick
		// them, but they won't be written in the pack
		candidates := make([]Packable, 0, len(opts.ThinBases)+len(ordered))
		candidates = append(candidates, opts.ThinBases...)
		candidates = append(candidates, ordered...)

		var err error
		chains, err = OptimizeChains(candidates, opts.MaxDeltaDepth, opts.Window)
		if err != nil {
			return nil, xerrors.Errorf("could not optimize delta chains: %w", err)
		}
		// Bases must be written before their dependents, otherwise
		// an ofs-delta couldn't point backward to them
		ordered = orderForChains(ordered, chains)
	}

	inPack := make(map[ginternals.Oid]bool, len(ordered))
	for i := range ordered {
		inPack[ordered[i].ID] = true
	}

	buf := new(bytes.Buffer)
	buf.Write(packfileMagic())
	buf.Write(packfileVersion())
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(ordered)))
	buf.Write(count[:])

	offsets := make(map[ginternals.Oid]uint64, len(ordered))
	missing := map[ginternals.Oid]bool{}

	for start := 0; start < len(ordered); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Errorf("pack generation canceled: %w", err)
		}

		end := start + opts.BatchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		for i := start; i < end; i++ {
			o := &ordered[i]
			offset := uint64(buf.Len())

			entry, deltified := chains[o.ID]
			if err := writeObject(buf, o, entry, deltified, offsets, inPack, missing, &opts, offset); err != nil {
				return nil, xerrors.Errorf("could not write object %s: %w", o.ID.String(), err)
			}
			offsets[o.ID] = offset
		}
	}

	checksum := sha1.Sum(buf.Bytes())
	buf.Write(checksum[:])

	res := &Result{
		Bytes:       buf.Bytes(),
		ObjectCount: uint32(len(ordered)),
		Checksum:    checksum,
	}
	for oid := range missing {
		res.MissingBases = append(res.MissingBases, oid)
	}
	return res, nil
}

// writeObject writes a single object entry: its type+size header, its
// delta base reference if deltified, and its zlib-compressed data
func writeObject(buf *bytes.Buffer, o *Packable, entry ChainEntry, deltified bool,
	offsets map[ginternals.Oid]uint64, inPack map[ginternals.Oid]bool,
	missing map[ginternals.Oid]bool, opts *Options, offset uint64,
) error {
	data := o.Data
	typ := o.Type

	var baseRef []byte
	if deltified {
		data = entry.delta
		baseOffset, baseInPack := offsets[entry.BaseID]
		switch {
		case baseInPack && opts.UseOfsDelta:
			typ = object.ObjectDeltaOFS
			baseRef = writeDeltaOffset(nil, offset-baseOffset)
		case baseInPack || !inPack[entry.BaseID]:
			// ref-delta, either because the client didn't advertise
			// ofs-delta or because the base lives outside the pack
			// (thin pack)
			typ = object.ObjectDeltaRef
			baseRef = entry.BaseID.Bytes()
			if !inPack[entry.BaseID] {
				missing[entry.BaseID] = true
			}
		default:
			// The base is part of the pack but hasn't been written
			// yet. orderForChains prevents this
			return xerrors.Errorf("base %s not written yet: %w", entry.BaseID.String(), ErrUnknownBase)
		}
	}

	buf.Write(writeEntryHeader(nil, typ, uint64(len(data))))
	buf.Write(baseRef)
	return compressTo(buf, data, opts.CompressionLevel)
}

// compressTo writes the zlib-compressed form of data to buf
func compressTo(buf *bytes.Buffer, data []byte, level int) (err error) {
	zw, err := zlib.NewWriterLevel(buf, level)
	if err != nil {
		return xerrors.Errorf("could not create zlib writer: %w", err)
	}
	defer errutil.Close(zw, &err)

	if _, err = zw.Write(data); err != nil {
		return xerrors.Errorf("could not compress object data: %w", err)
	}
	return nil
}
