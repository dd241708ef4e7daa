package packfile

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/ginternals/delta"
	"github.com/gitdo/gitdo/ginternals/object"
)

func TestEntryHeader(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		sizes := []uint64{0, 1, 15, 16, 127, 128, 4096, 1 << 20, 1 << 40}
		types := []object.Type{object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag, object.ObjectDeltaOFS, object.ObjectDeltaRef}

		for _, typ := range types {
			for _, size := range sizes {
				header := writeEntryHeader(nil, typ, size)

				gotType := object.Type(header[0] >> 4 & 0x7)
				assert.Equal(t, typ, gotType)

				// The size starts in the low 4 bits of the first
				// byte and continues in 7-bit chunks
				gotSize := uint64(header[0] & 0xf)
				if isMSBSet(header[0]) {
					rest, n, err := readSize(header[1:])
					require.NoError(t, err)
					assert.Equal(t, len(header)-1, n)
					gotSize |= rest << 4
				}
				assert.Equal(t, size, gotSize)
			}
		}
	})

	t.Run("small size should fit a single byte", func(t *testing.T) {
		t.Parallel()

		header := writeEntryHeader(nil, object.TypeBlob, 10)
		require.Len(t, header, 1)
		assert.False(t, isMSBSet(header[0]))
	})
}

func TestDeltaOffset(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		offsets := []uint64{1, 127, 128, 129, 16383, 16384, 1 << 20, 1 << 32}
		for _, offset := range offsets {
			encoded := writeDeltaOffset(nil, offset)
			decoded, n, err := readDeltaOffset(encoded)
			require.NoError(t, err)
			assert.Equal(t, offset, decoded, "offset %d", offset)
			assert.Equal(t, len(encoded), n)
		}
	})

	t.Run("known encodings", func(t *testing.T) {
		t.Parallel()

		// Offsets up to 127 fit one byte
		assert.Equal(t, []byte{0x7f}, writeDeltaOffset(nil, 127))
		// 128 needs two chunks, the first one stored off by one
		assert.Equal(t, []byte{0x80, 0x00}, writeDeltaOffset(nil, 128))
	})
}

func TestReadSize(t *testing.T) {
	t.Parallel()

	t.Run("endless size should overflow", func(t *testing.T) {
		t.Parallel()

		data := make([]byte, 11)
		for i := range data {
			data[i] = 0x80
		}
		_, _, err := readSize(data)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIntOverflow)
	})
}

func TestValidateDeltaBounds(t *testing.T) {
	t.Parallel()

	t.Run("absurd delta target should be reported, not crash", func(t *testing.T) {
		t.Parallel()

		deflate := func(data []byte) []byte {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			_, err := zw.Write(data)
			require.NoError(t, err)
			require.NoError(t, zw.Close())
			return buf.Bytes()
		}

		base := []byte("base")
		baseID := object.New(object.TypeBlob, base).ID()

		// A delta claiming to inflate to 2^62 bytes while carrying
		// a single one-byte insert
		d := delta.EncodeVarint(nil, uint64(len(base)))
		d = delta.EncodeVarint(d, 1<<62)
		d = append(d, 1, 'a')

		var pack bytes.Buffer
		pack.Write(packfileMagic())
		pack.Write(packfileVersion())
		var count [4]byte
		binary.BigEndian.PutUint32(count[:], 2)
		pack.Write(count[:])

		pack.Write(writeEntryHeader(nil, object.TypeBlob, uint64(len(base))))
		pack.Write(deflate(base))

		pack.Write(writeEntryHeader(nil, object.ObjectDeltaRef, uint64(len(d))))
		pack.Write(baseID.Bytes())
		pack.Write(deflate(d))

		sum := sha1.Sum(pack.Bytes())
		pack.Write(sum[:])

		report := Validate(pack.Bytes(), true)
		assert.False(t, report.Valid)
		assert.Equal(t, uint32(2), report.ObjectsParsed)
		require.NotEmpty(t, report.Problems)
		assert.Contains(t, report.Problems[len(report.Problems)-1], "delta doesn't apply")
	})
}
