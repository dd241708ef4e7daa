package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/backend"
	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/object"
	"github.com/gitdo/gitdo/internal/testhelper"
)

func TestCommitParents(t *testing.T) {
	t.Parallel()

	f := testhelper.NewFixture(t)
	history := f.LinearHistory(2)

	parents, err := backend.CommitParents(f.Store, history[1])
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, history[0], parents[0])

	parents, err = backend.CommitParents(f.Store, history[0])
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestReachableObjects(t *testing.T) {
	t.Parallel()

	t.Run("should visit commits trees and blobs", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(3)
		tip := history[len(history)-1]

		var visited []ginternals.Oid
		err := backend.ReachableObjects(context.Background(), f.Store, tip, nil, func(o *object.Object) error {
			visited = append(visited, o.ID())
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, visited, 9)
	})

	t.Run("should walk through annotated tags", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(1)
		tagID := f.Tag("v1.0.0", history[0])

		var visited []ginternals.Oid
		err := backend.ReachableObjects(context.Background(), f.Store, tagID, nil, func(o *object.Object) error {
			visited = append(visited, o.ID())
			return nil
		})
		require.NoError(t, err)
		// tag + commit + tree + blob
		assert.Len(t, visited, 4)
	})

	t.Run("visited map should memoize across walks", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(3)

		opts := &backend.WalkOptions{Visited: map[ginternals.Oid]struct{}{}}
		count := 0
		counter := func(*object.Object) error {
			count++
			return nil
		}

		require.NoError(t, backend.ReachableObjects(context.Background(), f.Store, history[1], opts, counter))
		firstWalk := count
		assert.Equal(t, 6, firstWalk)

		// Walking from the tip only visits what the first walk
		// didn't cover
		require.NoError(t, backend.ReachableObjects(context.Background(), f.Store, history[2], opts, counter))
		assert.Equal(t, firstWalk+3, count)
	})

	t.Run("MaxGeneration should bound the ancestry", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(5)
		tip := history[len(history)-1]

		count := 0
		opts := &backend.WalkOptions{MaxGeneration: 2}
		err := backend.ReachableObjects(context.Background(), f.Store, tip, opts, func(*object.Object) error {
			count++
			return nil
		})
		require.NoError(t, err)
		// 2 commits with their trees and blobs
		assert.Equal(t, 6, count)
	})

	t.Run("NoParents should cut the history", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(4)
		tip := history[len(history)-1]

		count := 0
		opts := &backend.WalkOptions{
			NoParents: map[ginternals.Oid]struct{}{history[2]: {}},
		}
		err := backend.ReachableObjects(context.Background(), f.Store, tip, opts, func(*object.Object) error {
			count++
			return nil
		})
		require.NoError(t, err)
		// Commits 3 and 4 only
		assert.Equal(t, 6, count)
	})

	t.Run("callback error should stop the walk", func(t *testing.T) {
		t.Parallel()

		f := testhelper.NewFixture(t)
		history := f.LinearHistory(3)

		wentTooFar := false
		err := backend.ReachableObjects(context.Background(), f.Store, history[2], nil, func(o *object.Object) error {
			if o.ID() == history[2] {
				return ginternals.ErrObjectNotFound
			}
			wentTooFar = true
			return nil
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ginternals.ErrObjectNotFound)
		assert.False(t, wentTooFar)
	})
}
