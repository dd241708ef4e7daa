// Package pathutil contains pflag values validating filesystem paths
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// ErrIsNotDirectory is an error returned when a path
// is expected to points to a directory but isn't
var ErrIsNotDirectory = errors.New("path is not a directory")

// PathValue represents a Flag value to be parsed by spf13/pflag
type PathValue struct {
	defaultValue string
	userValue    string
	valueSet     bool
}

// NewDirPathFlagWithDefault return a new Flag Value that should hold
// a valid path to a directory
func NewDirPathFlagWithDefault(defaultPath string) *PathValue {
	return &PathValue{
		defaultValue: defaultPath,
	}
}

// we make sure the struct implements the interface
var _ pflag.Value = (*PathValue)(nil)

// String returns the flag's value
func (v *PathValue) String() string {
	if v.valueSet {
		return v.userValue
	}
	return v.defaultValue
}

// Set sets the flag's value.
// The path must exist and be a directory
func (v *PathValue) Set(value string) (err error) {
	if value == "" {
		return nil
	}

	value, err = filepath.Abs(value)
	if err != nil {
		return fmt.Errorf("could not find absolute path: %w", err)
	}

	info, err := os.Stat(value)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("invalid path %s: %w", value, os.ErrNotExist)
		}
		return fmt.Errorf("could not check path %s: %w", value, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid path %s: %w", value, ErrIsNotDirectory)
	}

	v.valueSet = true
	v.userValue = value
	return nil
}

// Type returns the unique type of the Value
func (v *PathValue) Type() string {
	return "path"
}
