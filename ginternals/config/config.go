// Package config contains structs to interact with the repository
// configuration impacting the transfer engine
package config

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gitdo/gitdo/internal/env"
	"github.com/gitdo/gitdo/internal/gitpath"
)

// Config represents the on-disk layout of a repository, resolved from
// the environment the way git does it
// https://git-scm.com/book/en/v2/Git-Internals-Environment-Variables
type Config struct {
	// FS represents the file system implementation to use to look
	// for files and directories.
	// Defaults to the regular filesystem
	FS afero.Fs

	// GitDirPath represents the path to the .git directory.
	// Maps to $GIT_DIR if set
	GitDirPath string
	// ObjectDirPath represents the path to the .git/objects
	// directory.
	// Maps to $GIT_OBJECT_DIRECTORY if set, defaults to
	// $(GitDirPath)/objects
	ObjectDirPath string
	// LocalConfig represents the config file to load.
	// Maps to $GIT_CONFIG if set, defaults to $(GitDirPath)/config
	LocalConfig string
}

// LoadConfigOptions represents all the params used to set the
// default values of a Config object
type LoadConfigOptions struct {
	// FS represents the file system implementation to use to look
	// for files and directories.
	// Defaults to the regular filesystem
	FS afero.Fs
	// GitDirPath corresponds to the .git directory to use,
	// overriding $GIT_DIR
	GitDirPath string
}

// LoadConfig resolves the repository paths from the given
// environment
func LoadConfig(e *env.Env, opts LoadConfigOptions) *Config {
	cfg := &Config{
		FS:         opts.FS,
		GitDirPath: opts.GitDirPath,
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.GitDirPath == "" {
		cfg.GitDirPath = e.Get("GIT_DIR")
	}
	if cfg.GitDirPath == "" {
		cfg.GitDirPath = gitpath.DotGitPath
	}

	cfg.ObjectDirPath = e.Get("GIT_OBJECT_DIRECTORY")
	if cfg.ObjectDirPath == "" {
		cfg.ObjectDirPath = filepath.Join(cfg.GitDirPath, gitpath.ObjectsPath)
	}

	cfg.LocalConfig = e.Get("GIT_CONFIG")
	if cfg.LocalConfig == "" {
		cfg.LocalConfig = filepath.Join(cfg.GitDirPath, gitpath.ConfigPath)
	}
	return cfg
}
