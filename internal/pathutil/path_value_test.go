package pathutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/internal/pathutil"
)

func TestDirPathFlag(t *testing.T) {
	t.Parallel()

	t.Run("default value is reported until set", func(t *testing.T) {
		t.Parallel()

		v := pathutil.NewDirPathFlagWithDefault("/var/data")
		assert.Equal(t, "/var/data", v.String())
	})

	t.Run("valid directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		v := pathutil.NewDirPathFlagWithDefault("")
		require.NoError(t, v.Set(dir))
		assert.Equal(t, dir, v.String())
	})

	t.Run("missing path is rejected", func(t *testing.T) {
		t.Parallel()

		v := pathutil.NewDirPathFlagWithDefault("")
		err := v.Set(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("file is rejected", func(t *testing.T) {
		t.Parallel()

		p := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))

		v := pathutil.NewDirPathFlagWithDefault("")
		err := v.Set(p)
		require.Error(t, err)
		assert.ErrorIs(t, err, pathutil.ErrIsNotDirectory)
	})
}
