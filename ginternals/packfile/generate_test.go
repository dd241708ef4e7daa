package packfile_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/ginternals/object"
	"github.com/gitdo/gitdo/ginternals/packfile"
)

// packable wraps content into the shape the generator consumes
func packable(typ object.Type, content string) packfile.Packable {
	o := object.New(typ, []byte(content))
	return packfile.Packable{
		ID:   o.ID(),
		Type: typ,
		Data: o.Bytes(),
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	t.Run("pack of whole objects should validate", func(t *testing.T) {
		t.Parallel()

		objects := []packfile.Packable{
			packable(object.TypeBlob, "first blob\n"),
			packable(object.TypeBlob, "second blob\n"),
			packable(object.TypeCommit, "not really a commit but packable\n"),
		}

		res, err := packfile.Generate(context.Background(), objects, packfile.Options{NoDeltas: true})
		require.NoError(t, err)
		assert.Equal(t, uint32(3), res.ObjectCount)
		assert.Empty(t, res.MissingBases)

		report := packfile.Validate(res.Bytes, true)
		require.True(t, report.Valid, "problems: %v", report.Problems)
		assert.Equal(t, uint32(3), report.ObjectCount)
		assert.Equal(t, uint32(3), report.ObjectsParsed)
		assert.Equal(t, res.Checksum, report.Checksum)
	})

	t.Run("similar objects should be deltified", func(t *testing.T) {
		t.Parallel()

		common := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 50)
		objects := []packfile.Packable{
			packable(object.TypeBlob, string(common)+"v1\n"),
			packable(object.TypeBlob, string(common)+"v2 with more\n"),
			packable(object.TypeBlob, string(common)+"v3 with even more\n"),
		}

		res, err := packfile.Generate(context.Background(), objects, packfile.Options{})
		require.NoError(t, err)

		// Deltification must keep the pack well below three times
		// the shared content
		assert.Less(t, len(res.Bytes), 2*len(common))

		report := packfile.Validate(res.Bytes, true)
		require.True(t, report.Valid, "problems: %v", report.Problems)
	})

	t.Run("ofs-delta should validate", func(t *testing.T) {
		t.Parallel()

		common := bytes.Repeat([]byte("shared shared shared\n"), 100)
		objects := []packfile.Packable{
			packable(object.TypeBlob, string(common)+"a\n"),
			packable(object.TypeBlob, string(common)+"b\n"),
		}

		res, err := packfile.Generate(context.Background(), objects, packfile.Options{UseOfsDelta: true})
		require.NoError(t, err)

		report := packfile.Validate(res.Bytes, true)
		require.True(t, report.Valid, "problems: %v", report.Problems)
		assert.Equal(t, uint32(2), report.ObjectsParsed)
	})

	t.Run("thin pack should report the missing bases", func(t *testing.T) {
		t.Parallel()

		common := bytes.Repeat([]byte("line of shared content\n"), 100)
		base := packable(object.TypeBlob, string(common)+"the client has this one\n")
		objects := []packfile.Packable{
			packable(object.TypeBlob, string(common)+"only this one is sent\n"),
		}

		res, err := packfile.Generate(context.Background(), objects, packfile.Options{
			ThinBases: []packfile.Packable{base},
		})
		require.NoError(t, err)

		assert.Equal(t, uint32(1), res.ObjectCount)
		require.Len(t, res.MissingBases, 1)
		assert.Equal(t, base.ID, res.MissingBases[0])

		// A thin pack can't resolve on its own: the delta walk must
		// flag the external base
		report := packfile.Validate(res.Bytes, true)
		assert.False(t, report.Valid)
	})

	t.Run("empty pack should validate", func(t *testing.T) {
		t.Parallel()

		res, err := packfile.Generate(context.Background(), nil, packfile.Options{})
		require.NoError(t, err)
		assert.Equal(t, uint32(0), res.ObjectCount)

		report := packfile.Validate(res.Bytes, true)
		require.True(t, report.Valid, "problems: %v", report.Problems)
	})

	t.Run("canceled context should abort", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		objects := []packfile.Packable{packable(object.TypeBlob, "data")}
		_, err := packfile.Generate(ctx, objects, packfile.Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("deep history should respect the max chain depth", func(t *testing.T) {
		t.Parallel()

		// 30 revisions of the same growing file
		content := bytes.Repeat([]byte("some stable content that deltas well\n"), 30)
		objects := make([]packfile.Packable, 30)
		for i := range objects {
			objects[i] = packable(object.TypeBlob, fmt.Sprintf("%srevision %d\n", content, i))
		}

		res, err := packfile.Generate(context.Background(), objects, packfile.Options{
			MaxDeltaDepth: 3,
			Strategy:      packfile.StrategyDeltaTopo,
		})
		require.NoError(t, err)

		report := packfile.Validate(res.Bytes, true)
		require.True(t, report.Valid, "problems: %v", report.Problems)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("bad magic should be reported", func(t *testing.T) {
		t.Parallel()

		data := make([]byte, 40)
		copy(data, "JUNK")
		report := packfile.Validate(data, false)
		assert.False(t, report.Valid)
		assert.NotEmpty(t, report.Problems)
	})

	t.Run("corrupted checksum should be reported", func(t *testing.T) {
		t.Parallel()

		res, err := packfile.Generate(context.Background(), []packfile.Packable{
			packable(object.TypeBlob, "some content"),
		}, packfile.Options{})
		require.NoError(t, err)

		data := make([]byte, len(res.Bytes))
		copy(data, res.Bytes)
		data[len(data)-1] ^= 0xff

		report := packfile.Validate(data, false)
		assert.False(t, report.Valid)
	})

	t.Run("truncated pack should be reported", func(t *testing.T) {
		t.Parallel()

		report := packfile.Validate([]byte("PACK"), false)
		assert.False(t, report.Valid)
	})
}

func TestOrder(t *testing.T) {
	t.Parallel()

	t.Run("type-first should write commits before trees before blobs", func(t *testing.T) {
		t.Parallel()

		objects := []packfile.Packable{
			packable(object.TypeBlob, "blob"),
			packable(object.TypeTag, "tag"),
			packable(object.TypeCommit, "commit"),
			packable(object.TypeTree, "tree"),
		}
		ordered := packfile.Order(objects, packfile.StrategyTypeFirst)
		require.Len(t, ordered, 4)
		assert.Equal(t, object.TypeCommit, ordered[0].Type)
		assert.Equal(t, object.TypeTree, ordered[1].Type)
		assert.Equal(t, object.TypeBlob, ordered[2].Type)
		assert.Equal(t, object.TypeTag, ordered[3].Type)
	})

	t.Run("size-descending should write the biggest first", func(t *testing.T) {
		t.Parallel()

		objects := []packfile.Packable{
			packable(object.TypeBlob, "tiny"),
			packable(object.TypeBlob, "a much much much bigger object"),
		}
		ordered := packfile.Order(objects, packfile.StrategySizeDescending)
		assert.True(t, ordered[0].Size() > ordered[1].Size())
	})

	t.Run("should be deterministic", func(t *testing.T) {
		t.Parallel()

		objects := []packfile.Packable{
			packable(object.TypeBlob, "aaa"),
			packable(object.TypeBlob, "bbb"),
			packable(object.TypeBlob, "ccc"),
		}
		a := packfile.Order(objects, packfile.StrategyTypeFirst)
		b := packfile.Order(objects, packfile.StrategyTypeFirst)
		assert.Equal(t, a, b)
	})
}

func TestOptimizeChains(t *testing.T) {
	t.Parallel()

	t.Run("should pick a base for similar objects", func(t *testing.T) {
		t.Parallel()

		common := bytes.Repeat([]byte("0123456789"), 100)
		objects := []packfile.Packable{
			packable(object.TypeBlob, string(common)+"one"),
			packable(object.TypeBlob, string(common)+"two"),
		}

		chains, err := packfile.OptimizeChains(objects, 0, 0)
		require.NoError(t, err)
		require.Len(t, chains, 1)

		entry := chains[objects[1].ID]
		assert.Equal(t, objects[0].ID, entry.BaseID)
		assert.Equal(t, 1, entry.Depth)
		assert.Greater(t, entry.Savings, 0)
	})

	t.Run("different types should never delta against each other", func(t *testing.T) {
		t.Parallel()

		content := bytes.Repeat([]byte("same bytes in both"), 50)
		objects := []packfile.Packable{
			packable(object.TypeBlob, string(content)),
			packable(object.TypeTree, string(content)),
		}

		chains, err := packfile.OptimizeChains(objects, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, chains)
	})

	t.Run("unrelated objects should stay whole", func(t *testing.T) {
		t.Parallel()

		objects := []packfile.Packable{
			packable(object.TypeBlob, "abc"),
			packable(object.TypeBlob, "xyz"),
		}

		chains, err := packfile.OptimizeChains(objects, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, chains)
	})

	t.Run("depth should be bounded", func(t *testing.T) {
		t.Parallel()

		common := bytes.Repeat([]byte("a long run of shared content\n"), 50)
		objects := make([]packfile.Packable, 10)
		for i := range objects {
			objects[i] = packable(object.TypeBlob, fmt.Sprintf("%s%d", common, i))
		}

		chains, err := packfile.OptimizeChains(objects, 2, 0)
		require.NoError(t, err)
		for _, entry := range chains {
			assert.LessOrEqual(t, entry.Depth, 2)
		}
	})

	t.Run("base out of the window should not be picked", func(t *testing.T) {
		t.Parallel()

		common := bytes.Repeat([]byte("windowed content\n"), 100)
		filler := make([]packfile.Packable, 0, 7)
		for i := 0; i < 5; i++ {
			filler = append(filler, packable(object.TypeBlob, fmt.Sprintf("unrelated filler %d", i)))
		}

		objects := []packfile.Packable{packable(object.TypeBlob, string(common)+"base")}
		objects = append(objects, filler...)
		objects = append(objects, packable(object.TypeBlob, string(common)+"target"))

		// window of 2: the similar base is 6 positions back
		chains, err := packfile.OptimizeChains(objects, 0, 2)
		require.NoError(t, err)
		assert.Empty(t, chains)
	})
}
