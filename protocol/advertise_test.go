package protocol_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/backend/memory"
	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/capability"
	"github.com/gitdo/gitdo/ginternals/pktline"
	"github.com/gitdo/gitdo/internal/testhelper"
	"github.com/gitdo/gitdo/protocol"
)

// advertisedLines decodes the pkt-line stream and returns the
// payloads as strings, newline stripped
func advertisedLines(t *testing.T, data []byte) []string {
	t.Helper()

	packets, remaining, err := pktline.DecodeStream(data)
	require.NoError(t, err)
	require.Empty(t, remaining)
	require.Equal(t, pktline.KindFlush, packets[len(packets)-1].Kind, "the advertisement must end with a flush-pkt")

	lines := make([]string, 0, len(packets)-1)
	for _, pkt := range packets[:len(packets)-1] {
		lines = append(lines, strings.TrimSuffix(string(pkt.Payload), "\n"))
	}
	return lines
}

func TestAdvertiseRefs(t *testing.T) {
	t.Parallel()

	t.Run("should advertise HEAD first with the capabilities", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(2)
		tip := history[len(history)-1]
		f.Branch("master", tip)

		caps := protocol.ServerCapabilities()
		buf := &bytes.Buffer{}
		require.NoError(t, protocol.AdvertiseRefs(f.Store, caps, buf))

		lines := advertisedLines(t, buf.Bytes())
		require.Len(t, lines, 2)
		assert.Equal(t, tip.String()+" HEAD\x00"+caps.String(), lines[0])
		assert.Equal(t, tip.String()+" refs/heads/master", lines[1])
	})

	t.Run("annotated tags should get a peeled line", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(1)
		tip := history[0]
		f.Branch("master", tip)
		tagID := f.Tag("v1.0.0", tip)
		f.TagRef("v1.0.0", tagID)

		buf := &bytes.Buffer{}
		require.NoError(t, protocol.AdvertiseRefs(f.Store, protocol.ServerCapabilities(), buf))

		lines := advertisedLines(t, buf.Bytes())
		require.Len(t, lines, 4)
		assert.Equal(t, tagID.String()+" refs/tags/v1.0.0", lines[2])
		assert.Equal(t, tip.String()+" refs/tags/v1.0.0^{}", lines[3])
	})

	t.Run("empty repo should advertise a placeholder line", func(t *testing.T) {
		t.Parallel()

		store := memory.New()
		caps := protocol.ServerCapabilities()
		buf := &bytes.Buffer{}
		require.NoError(t, protocol.AdvertiseRefs(store, caps, buf))

		lines := advertisedLines(t, buf.Bytes())
		require.Len(t, lines, 1)
		expected := ginternals.NullOid.String() + " capabilities^{}\x00" + caps.String()
		assert.Equal(t, expected, lines[0])
	})

	t.Run("capabilities should only appear on the first line", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(1)
		f.Branch("master", history[0])
		f.Branch("feature", history[0])

		buf := &bytes.Buffer{}
		require.NoError(t, protocol.AdvertiseRefs(f.Store, protocol.ServerCapabilities(), buf))

		lines := advertisedLines(t, buf.Bytes())
		require.Len(t, lines, 3)
		for i, line := range lines {
			refPart, caps, err := capability.ParseFromRefLine([]byte(line+"\n"), i == 0)
			require.NoError(t, err)
			assert.NotEmpty(t, refPart)
			if i == 0 {
				assert.True(t, caps.Has(capability.SideBand64k))
			} else {
				assert.Nil(t, caps)
			}
		}
	})
}
