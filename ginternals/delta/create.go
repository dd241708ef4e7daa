package delta

import "encoding/binary"

const (
	// minMatchLen is the smallest match worth emitting a copy
	// instruction for: a copy costs at least 2 bytes on the wire, so
	// anything shorter than 4 bytes isn't worth leaving literal mode
	minMatchLen = 4

	// maxCopyLen is the largest copy a single instruction can emit.
	// The encoder sticks to the 65536 bytes that the size==0 special
	// case can express, matching git's own packing behavior
	maxCopyLen = copySizeZero

	// maxChainLen bounds the number of base positions kept per hash
	// bucket, so a base full of repeated content cannot make the
	// scan quadratic
	maxChainLen = 64

	// hashPrime is the multiplier of the window hash
	// (Knuth's multiplicative method)
	hashPrime = 2654435761
)

// hashWindow hashes the 4-byte window starting at data[i]
func hashWindow(data []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(data[i:i+4]) * hashPrime
}

// Create builds a delta turning base into target.
//
// The matcher indexes every 4-byte window of the base in a hash
// table, then greedily scans the target: at each position the
// candidate base offsets are probed and the longest byte-by-byte
// extension wins. Accumulated literals are flushed as insert
// instructions, accepted matches become copy instructions, and the
// scan resumes after the match. This single-pass scheme trades
// optimal compression for speed, like git's own delta heuristics.
//
// Only one base is indexed per call. Git proper also probes a window
// of recently seen objects for candidate bases; selecting between
// candidate bases is the caller's job (see the packfile package)
func Create(base, target []byte) []byte {
	out := make([]byte, 0, len(target)/2+16)
	out = EncodeVarint(out, uint64(len(base)))
	out = EncodeVarint(out, uint64(len(target)))

	// Index every 4-byte window of the base
	table := make(map[uint32][]int)
	for i := 0; i+minMatchLen <= len(base); i++ {
		h := hashWindow(base, i)
		if len(table[h]) < maxChainLen {
			table[h] = append(table[h], i)
		}
	}

	litStart := 0 // start of the pending literal run
	pos := 0
	for pos < len(target) {
		matchOff, matchLen := 0, 0
		if pos+minMatchLen <= len(target) {
			for _, cand := range table[hashWindow(target, pos)] {
				length := matchLength(base[cand:], target[pos:])
				if length > matchLen {
					matchOff, matchLen = cand, length
				}
			}
		}

		if matchLen < minMatchLen {
			pos++
			continue
		}

		out = appendInsert(out, target[litStart:pos])
		for matchLen > 0 {
			size := matchLen
			if size > maxCopyLen {
				size = maxCopyLen
			}
			out = appendCopy(out, matchOff, size)
			matchOff += size
			matchLen -= size
			pos += size
		}
		litStart = pos
	}
	out = appendInsert(out, target[litStart:])

	return out
}

// matchLength returns the length of the common prefix of a and b,
// capped so a single batch of copy instructions stays addressable
func matchLength(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// appendInsert appends the insert instructions covering lit, chunked
// to the 127 bytes a single instruction can carry
func appendInsert(dst, lit []byte) []byte {
	for len(lit) > 0 {
		n := len(lit)
		if n > maxInsertLen {
			n = maxInsertLen
		}
		dst = append(dst, byte(n))
		dst = append(dst, lit[:n]...)
		lit = lit[n:]
	}
	return dst
}

// appendCopy appends a copy instruction for size bytes at offset.
// Only the non-zero bytes of offset and size are emitted, flagged in
// the instruction byte; a size of 65536 is emitted with no size byte
// at all (the size==0 special case)
func appendCopy(dst []byte, offset, size int) []byte {
	instr := byte(0x80)
	var extra []byte

	for j := uint(0); j < 4; j++ {
		if b := byte(offset >> (8 * j)); b != 0 {
			instr |= 1 << j
			extra = append(extra, b)
		}
	}
	if size != copySizeZero {
		for j := uint(0); j < 3; j++ {
			if b := byte(size >> (8 * j)); b != 0 {
				instr |= 1 << (4 + j)
				extra = append(extra, b)
			}
		}
	}

	dst = append(dst, instr)
	return append(dst, extra...)
}
