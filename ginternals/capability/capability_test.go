package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/ginternals/capability"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("should parse bare names and values", func(t *testing.T) {
		t.Parallel()

		caps, err := capability.Parse("multi_ack_detailed side-band-64k agent=gitdo/1.0")
		require.NoError(t, err)

		assert.Equal(t, 3, caps.Len())
		assert.True(t, caps.Has(capability.MultiAckDetailed))
		assert.True(t, caps.Has(capability.SideBand64k))

		agent, ok := caps.Value(capability.Agent)
		require.True(t, ok)
		assert.Equal(t, "gitdo/1.0", agent)
	})

	t.Run("should keep the token order", func(t *testing.T) {
		t.Parallel()

		caps, err := capability.Parse("thin-pack ofs-delta shallow")
		require.NoError(t, err)
		assert.Equal(t, "thin-pack ofs-delta shallow", caps.String())
	})

	t.Run("empty list should parse to an empty set", func(t *testing.T) {
		t.Parallel()

		caps, err := capability.Parse("")
		require.NoError(t, err)
		assert.Equal(t, 0, caps.Len())
	})

	t.Run("unknown names should be kept", func(t *testing.T) {
		t.Parallel()

		caps, err := capability.Parse("brand-new-cap")
		require.NoError(t, err)
		assert.True(t, caps.Has("brand-new-cap"))
		assert.False(t, capability.Name("brand-new-cap").IsKnown())
	})

	t.Run("NUL byte should fail", func(t *testing.T) {
		t.Parallel()

		_, err := capability.Parse("side-band\x00agent=x")
		require.Error(t, err)
		assert.ErrorIs(t, err, capability.ErrMalformed)
	})
}

func TestParseFromRefLine(t *testing.T) {
	t.Parallel()

	sha := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	t.Run("first line should carry the capabilities", func(t *testing.T) {
		t.Parallel()

		line := []byte(sha + " HEAD\x00multi_ack thin-pack\n")
		refPart, caps, err := capability.ParseFromRefLine(line, true)
		require.NoError(t, err)
		assert.Equal(t, sha+" HEAD", string(refPart))
		assert.True(t, caps.Has(capability.MultiAck))
		assert.True(t, caps.Has(capability.ThinPack))
	})

	t.Run("first line without a NUL should fail", func(t *testing.T) {
		t.Parallel()

		line := []byte(sha + " HEAD\n")
		_, _, err := capability.ParseFromRefLine(line, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, capability.ErrMissingSeparator)
	})

	t.Run("non-first line should have no capabilities", func(t *testing.T) {
		t.Parallel()

		line := []byte(sha + " refs/heads/master\n")
		refPart, caps, err := capability.ParseFromRefLine(line, false)
		require.NoError(t, err)
		assert.Equal(t, sha+" refs/heads/master", string(refPart))
		assert.Nil(t, caps)
	})

	t.Run("NUL on a non-first line should fail", func(t *testing.T) {
		t.Parallel()

		line := []byte(sha + " refs/heads/master\x00thin-pack\n")
		_, _, err := capability.ParseFromRefLine(line, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, capability.ErrMalformed)
	})
}

func TestSelectCommon(t *testing.T) {
	t.Parallel()

	t.Run("should be a subset keeping the client order", func(t *testing.T) {
		t.Parallel()

		server := capability.NewSet(
			capability.Entry{Name: "multi_ack"},
			capability.Entry{Name: "side-band-64k"},
			capability.Entry{Name: "ofs-delta"},
			capability.Entry{Name: "agent", Value: "gitdo/1.0", HasValue: true},
		)
		client, err := capability.Parse("agent=git/2.40.0 ofs-delta multi_ack fancy-future-cap")
		require.NoError(t, err)

		common := capability.SelectCommon(server, client.Entries())
		require.Len(t, common, 3)
		// Client order, client values
		assert.Equal(t, "agent", common[0].Name)
		assert.Equal(t, "git/2.40.0", common[0].Value)
		assert.Equal(t, "ofs-delta", common[1].Name)
		assert.Equal(t, "multi_ack", common[2].Name)

		// Every selected capability is supported by both sides
		for _, e := range common {
			assert.True(t, server.Has(capability.Name(e.Name)))
			assert.True(t, client.Has(capability.Name(e.Name)))
		}
	})

	t.Run("no overlap should select nothing", func(t *testing.T) {
		t.Parallel()

		server := capability.NewSet(capability.Entry{Name: "multi_ack"})
		client, err := capability.Parse("side-band")
		require.NoError(t, err)
		assert.Empty(t, capability.SelectCommon(server, client.Entries()))
	})
}

func TestValidateRequired(t *testing.T) {
	t.Parallel()

	caps, err := capability.Parse("multi_ack side-band-64k")
	require.NoError(t, err)

	missing := capability.ValidateRequired(caps, []capability.Name{
		capability.MultiAck,
		capability.OfsDelta,
		capability.ThinPack,
	})
	require.Len(t, missing, 2)
	assert.Equal(t, capability.OfsDelta, missing[0])
	assert.Equal(t, capability.ThinPack, missing[1])
}
