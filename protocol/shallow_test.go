package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/internal/testhelper"
	"github.com/gitdo/gitdo/protocol"
)

func newShallowSession(t *testing.T, f *testhelper.Fixture, tip ginternals.Oid) *protocol.Session {
	t.Helper()
	s := protocol.NewSession()
	require.NoError(t, protocol.ProcessWants(s, f.Store, []ginternals.Oid{tip}))
	return s
}

func TestProcessShallow(t *testing.T) {
	t.Parallel()

	t.Run("depth 1 should mark the tip shallow", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(3)
		tip := history[len(history)-1]

		s := newShallowSession(t, f, tip)
		res, err := protocol.ProcessShallow(context.Background(), s, f.Store, protocol.DeepenRequest{Depth: 1})
		require.NoError(t, err)

		require.Len(t, res.Shallow, 1)
		assert.Equal(t, tip, res.Shallow[0])
		assert.Empty(t, res.Unshallow)
		assert.Contains(t, s.Shallow, tip)
	})

	t.Run("depth covering the whole history should mark nothing", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(3)
		tip := history[len(history)-1]

		s := newShallowSession(t, f, tip)
		res, err := protocol.ProcessShallow(context.Background(), s, f.Store, protocol.DeepenRequest{Depth: 10})
		require.NoError(t, err)

		assert.Empty(t, res.Shallow)
		assert.Empty(t, s.Shallow)
	})

	t.Run("deepening should unshallow the old boundary", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(4)
		tip := history[len(history)-1]

		s := newShallowSession(t, f, tip)
		// The client's clone was made with depth 1
		s.Shallow[tip] = struct{}{}

		res, err := protocol.ProcessShallow(context.Background(), s, f.Store, protocol.DeepenRequest{Depth: 2})
		require.NoError(t, err)

		require.Len(t, res.Shallow, 1)
		assert.Equal(t, history[2], res.Shallow[0])
		require.Len(t, res.Unshallow, 1)
		assert.Equal(t, tip, res.Unshallow[0])

		// The session boundary is replaced
		assert.NotContains(t, s.Shallow, tip)
		assert.Contains(t, s.Shallow, history[2])
	})

	t.Run("deepen-since should cut at the timestamp", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		// The fixture commits a minute apart starting at 12:01
		history := f.LinearHistory(4)
		tip := history[len(history)-1]

		s := newShallowSession(t, f, tip)
		since := time.Date(2021, 1, 1, 12, 2, 30, 0, time.UTC)
		res, err := protocol.ProcessShallow(context.Background(), s, f.Store, protocol.DeepenRequest{Since: since})
		require.NoError(t, err)

		// Commits 3 and 4 are kept, commit 3 becomes the boundary
		require.Len(t, res.Shallow, 1)
		assert.Equal(t, history[2], res.Shallow[0])
	})

	t.Run("deepen-not should cut at the excluded tip", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(4)
		tip := history[len(history)-1]

		s := newShallowSession(t, f, tip)
		res, err := protocol.ProcessShallow(context.Background(), s, f.Store, protocol.DeepenRequest{
			Not: []ginternals.Oid{history[1]},
		})
		require.NoError(t, err)

		// history[2] is the oldest kept commit: its parent is in
		// the excluded ancestry
		require.Len(t, res.Shallow, 1)
		assert.Equal(t, history[2], res.Shallow[0])
	})

	t.Run("no deepen instruction should be a no-op", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(2)
		tip := history[len(history)-1]

		s := newShallowSession(t, f, tip)
		res, err := protocol.ProcessShallow(context.Background(), s, f.Store, protocol.DeepenRequest{})
		require.NoError(t, err)
		assert.Empty(t, res.Shallow)
		assert.Empty(t, res.Unshallow)
	})
}
