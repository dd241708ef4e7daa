package config_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitdo/gitdo/ginternals/config"
	"github.com/gitdo/gitdo/internal/env"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults with an empty env", func(t *testing.T) {
		t.Parallel()

		e := env.NewFromKVList([]string{})
		cfg := config.LoadConfig(e, config.LoadConfigOptions{
			FS: afero.NewMemMapFs(),
		})

		assert.Equal(t, ".git", cfg.GitDirPath)
		assert.Equal(t, filepath.Join(".git", "objects"), cfg.ObjectDirPath)
		assert.Equal(t, filepath.Join(".git", "config"), cfg.LocalConfig)
	})

	t.Run("env vars override the defaults", func(t *testing.T) {
		t.Parallel()

		e := env.NewFromKVList([]string{
			"GIT_DIR=/srv/repo.git",
			"GIT_OBJECT_DIRECTORY=/srv/shared/objects",
			"GIT_CONFIG=/etc/gitconfig",
		})
		cfg := config.LoadConfig(e, config.LoadConfigOptions{
			FS: afero.NewMemMapFs(),
		})

		assert.Equal(t, "/srv/repo.git", cfg.GitDirPath)
		assert.Equal(t, "/srv/shared/objects", cfg.ObjectDirPath)
		assert.Equal(t, "/etc/gitconfig", cfg.LocalConfig)
	})

	t.Run("explicit git dir takes over GIT_DIR", func(t *testing.T) {
		t.Parallel()

		e := env.NewFromKVList([]string{
			"GIT_DIR=/srv/repo.git",
		})
		cfg := config.LoadConfig(e, config.LoadConfigOptions{
			FS:         afero.NewMemMapFs(),
			GitDirPath: "/data/other.git",
		})

		assert.Equal(t, "/data/other.git", cfg.GitDirPath)
		assert.Equal(t, filepath.Join("/data/other.git", "objects"), cfg.ObjectDirPath)
	})
}

func newTestAggregate(t *testing.T, content string) *config.FileAggregate {
	t.Helper()

	fs := afero.NewMemMapFs()
	cfg := config.LoadConfig(env.NewFromKVList([]string{}), config.LoadConfigOptions{
		FS:         fs,
		GitDirPath: "/repo/.git",
	})
	if content != "" {
		require.NoError(t, afero.WriteFile(fs, cfg.LocalConfig, []byte(content), 0o644))
	}
	agg, err := config.NewFileAggregate(cfg)
	require.NoError(t, err)
	return agg
}

func TestFileAggregate(t *testing.T) {
	t.Parallel()

	t.Run("missing file falls back to the defaults", func(t *testing.T) {
		t.Parallel()

		agg := newTestAggregate(t, "")

		_, ok := agg.DefaultBranch()
		assert.False(t, ok)
		assert.Equal(t, config.DefaultPackWindow, agg.PackWindow())
		assert.Equal(t, config.DefaultPackDepth, agg.PackDepth())
		assert.Equal(t, -1, agg.PackCompression())
		assert.False(t, agg.AllowTipSHA1InWant())
		assert.Empty(t, agg.HideRefs())
	})

	t.Run("values are read from the file", func(t *testing.T) {
		t.Parallel()

		agg := newTestAggregate(t, `
[init]
	defaultBranch = main
[pack]
	window = 20
	depth = 100
	compression = 9
[uploadpack]
	allowTipSHA1InWant = true
[transfer]
	hideRefs = refs/secret
	hideRefs = refs/internal
`)

		branch, ok := agg.DefaultBranch()
		require.True(t, ok)
		assert.Equal(t, "main", branch)
		assert.Equal(t, 20, agg.PackWindow())
		assert.Equal(t, 100, agg.PackDepth())
		assert.Equal(t, 9, agg.PackCompression())
		assert.True(t, agg.AllowTipSHA1InWant())
		assert.Equal(t, []string{"refs/secret", "refs/internal"}, agg.HideRefs())
	})

	t.Run("invalid values fall back to the defaults", func(t *testing.T) {
		t.Parallel()

		agg := newTestAggregate(t, `
[pack]
	window = nope
	depth = -3
	compression = 42
`)

		assert.Equal(t, config.DefaultPackWindow, agg.PackWindow())
		assert.Equal(t, config.DefaultPackDepth, agg.PackDepth())
		assert.Equal(t, -1, agg.PackCompression())
	})

	t.Run("pack.compression wins over core.compression", func(t *testing.T) {
		t.Parallel()

		agg := newTestAggregate(t, `
[core]
	compression = 1
[pack]
	compression = 6
`)

		assert.Equal(t, 6, agg.PackCompression())
	})

	t.Run("core.compression used when pack has none", func(t *testing.T) {
		t.Parallel()

		agg := newTestAggregate(t, `
[core]
	compression = 1
`)

		assert.Equal(t, 1, agg.PackCompression())
	})

	t.Run("unparsable lines are skipped", func(t *testing.T) {
		t.Parallel()

		agg := newTestAggregate(t, `
garbage line that means nothing
[pack]
	window = 15
`)

		assert.Equal(t, 15, agg.PackWindow())
	})
}
