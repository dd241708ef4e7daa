package config

import (
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// Defaults of the pack generation knobs, matching git's
const (
	DefaultPackWindow = 10
	DefaultPackDepth  = 50
)

// defaultLoadOption contains the params used to load the config files
//
//nolint:gochecknoglobals // Treat this as a const, don't ever change
// it from a method, even for testing
var defaultLoadOption = ini.LoadOptions{
	SkipUnrecognizableLines: true,
	// git allows repeating transfer.hideRefs to hide several
	// prefixes
	AllowShadows: true,
}

// FileAggregate represents the aggregate of the config files
// impacting a repository
type FileAggregate struct {
	cfg *Config
	agg *ini.File
}

// NewFileAggregate loads the repository's config file and returns an
// object with accessors.
// A missing config file isn't an error: every accessor falls back to
// its default
func NewFileAggregate(cfg *Config) (confFile *FileAggregate, err error) {
	confFile = &FileAggregate{
		cfg: cfg,
	}

	_, sErr := cfg.FS.Stat(cfg.LocalConfig)
	if sErr != nil {
		if errors.Is(sErr, os.ErrNotExist) {
			confFile.agg = ini.Empty(defaultLoadOption)
			return confFile, nil
		}
		return nil, fmt.Errorf("could not check file %s: %w", cfg.LocalConfig, sErr)
	}

	// Because we want to use afero instead of the file system, we
	// cannot just provide the file path to ini.Load: we need to open
	// the file ourselves and hand it over
	f, fErr := cfg.FS.Open(cfg.LocalConfig)
	if fErr != nil {
		return nil, fmt.Errorf("could not open file %s: %w", cfg.LocalConfig, fErr)
	}
	defer func() {
		// go-ini already closes the file for us. This code is only
		// here to prevent a FD leak in case go-ini updates the
		// behavior and we don't see it / remember about it
		//nolint:errcheck // it's expected to fail as the file is
		// already closed
		f.(io.ReadCloser).Close()
	}()

	confFile.agg, err = ini.LoadSources(defaultLoadOption, f)
	if err != nil {
		return nil, fmt.Errorf("could not load config file: %w", err)
	}
	return confFile, nil
}

// DefaultBranch returns the name of the default branch.
// The branch name isn't checked and may be an invalid value
func (cfg *FileAggregate) DefaultBranch() (name string, ok bool) {
	v := cfg.agg.Section("init").Key("defaultBranch").String()
	if v == "" {
		return "", false
	}
	return v, true
}

// PackWindow returns the number of objects considered as delta base
// candidates during pack generation (pack.window)
func (cfg *FileAggregate) PackWindow() int {
	v, err := cfg.agg.Section("pack").Key("window").Int()
	if err != nil || v <= 0 {
		return DefaultPackWindow
	}
	return v
}

// PackDepth returns the maximum delta chain length (pack.depth)
func (cfg *FileAggregate) PackDepth() int {
	v, err := cfg.agg.Section("pack").Key("depth").Int()
	if err != nil || v <= 0 {
		return DefaultPackDepth
	}
	return v
}

// PackCompression returns the zlib level used for the objects stored
// in a pack (pack.compression, falling back to core.compression)
func (cfg *FileAggregate) PackCompression() int {
	for _, key := range []*ini.Key{
		cfg.agg.Section("pack").Key("compression"),
		cfg.agg.Section("core").Key("compression"),
	} {
		v, err := key.Int()
		if err != nil {
			continue
		}
		if v >= zlib.HuffmanOnly && v <= zlib.BestCompression {
			return v
		}
	}
	return zlib.DefaultCompression
}

// AllowTipSHA1InWant returns whether clients may want an object that
// isn't the tip of any advertised ref
// (uploadpack.allowTipSHA1InWant)
func (cfg *FileAggregate) AllowTipSHA1InWant() bool {
	v, err := cfg.agg.Section("uploadpack").Key("allowTipSHA1InWant").Bool()
	if err != nil {
		return false
	}
	return v
}

// HideRefs returns the ref prefixes that must not be advertised
// (transfer.hideRefs)
func (cfg *FileAggregate) HideRefs() []string {
	values := cfg.agg.Section("transfer").Key("hideRefs").ValueWithShadows()
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
