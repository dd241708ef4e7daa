package delta

import (
	"golang.org/x/xerrors"
)

// Apply runs the given delta against a base object and returns the
// reconstructed target.
// The operation fails if the delta declares a source size that's not
// len(base), if any instruction reads or writes out of bounds, or if
// the result doesn't have exactly the declared target size
func Apply(base, delta []byte) ([]byte, error) {
	srcSize, n, err := ParseVarint(delta)
	if err != nil {
		return nil, xerrors.Errorf("could not read source size: %w", err)
	}
	delta = delta[n:]
	if srcSize != uint64(len(base)) {
		return nil, xerrors.Errorf("declared %d, base is %d bytes: %w", srcSize, len(base), ErrSourceSizeMismatch)
	}

	targetSize, n, err := ParseVarint(delta)
	if err != nil {
		return nil, xerrors.Errorf("could not read target size: %w", err)
	}
	delta = delta[n:]

	// The declared size comes from the wire and can't be trusted for
	// the allocation: each instruction byte emits at most copySizeMax
	// bytes, which bounds what the stream can ever produce
	if targetSize > uint64(len(delta))*copySizeMax {
		return nil, xerrors.Errorf("declared target of %d bytes for a %d bytes delta: %w", targetSize, len(delta), ErrTargetSizeMismatch)
	}
	allocSize := targetSize
	if limit := uint64(len(base) + len(delta)); allocSize > limit {
		allocSize = limit
	}
	out := make([]byte, 0, allocSize)
	for i := 0; i < len(delta); {
		instr := delta[i]
		i++

		// The MSB of the instruction byte select between COPY (1)
		// and INSERT (0)
		if instr&0x80 != 0 { // COPY
			// The low 4 bits tell which of the 4 little-endian
			// offset bytes follow, the next 3 bits tell which of
			// the 3 little-endian size bytes follow.
			// Example: offset bits 1010 mean 2 bytes follow, to be
			// placed at positions 1 and 3 of the offset, positions
			// 0 and 2 staying 0
			var offset, size uint32
			for j := uint(0); j < 4; j++ {
				if instr>>j&1 == 1 {
					if i >= len(delta) {
						return nil, xerrors.Errorf("truncated copy offset: %w", ErrInvalidInstruction)
					}
					offset |= uint32(delta[i]) << (8 * j)
					i++
				}
			}
			for j := uint(0); j < 3; j++ {
				if instr>>(4+j)&1 == 1 {
					if i >= len(delta) {
						return nil, xerrors.Errorf("truncated copy size: %w", ErrInvalidInstruction)
					}
					size |= uint32(delta[i]) << (8 * j)
					i++
				}
			}
			// A size of 0 stands for 65536 bytes
			if size == 0 {
				size = copySizeZero
			}

			if uint64(offset)+uint64(size) > uint64(len(base)) {
				return nil, xerrors.Errorf("copy of %d bytes at offset %d on a %d bytes base: %w", size, offset, len(base), ErrOutOfBounds)
			}
			if uint64(len(out))+uint64(size) > targetSize {
				return nil, xerrors.Errorf("copy overflows the %d bytes target: %w", targetSize, ErrOutOfBounds)
			}
			out = append(out, base[offset:offset+size]...)
			continue
		}

		// INSERT: the instruction byte itself is the number of
		// literal bytes to take from the delta stream (1-127).
		// 0 is not a valid instruction
		if instr == 0 {
			return nil, xerrors.Errorf("instruction byte 0x00: %w", ErrInvalidInstruction)
		}
		length := int(instr)
		if i+length > len(delta) {
			return nil, xerrors.Errorf("truncated insert of %d bytes: %w", length, ErrInvalidInstruction)
		}
		if uint64(len(out))+uint64(length) > targetSize {
			return nil, xerrors.Errorf("insert overflows the %d bytes target: %w", targetSize, ErrOutOfBounds)
		}
		out = append(out, delta[i:i+length]...)
		i += length
	}

	if uint64(len(out)) != targetSize {
		return nil, xerrors.Errorf("wrote %d bytes, expected %d: %w", len(out), targetSize, ErrTargetSizeMismatch)
	}
	return out, nil
}
