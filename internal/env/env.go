// Package env wraps the process environment so commands can be
// tested with a fabricated one
package env

import (
	"os"
	"strings"
)

// Env represents the environment
type Env struct {
	env map[string]string
}

// NewFromOs builds and returns an Env using os.Environ
func NewFromOs() *Env {
	return NewFromKVList(os.Environ())
}

// NewFromKVList builds and returns an Env using a provided list of
// string in the form "key=value".
// Entries without a "=" are skipped; only the first "=" separates
// the key from the value
func NewFromKVList(kvs []string) *Env {
	e := &Env{
		env: make(map[string]string, len(kvs)),
	}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		e.env[k] = v
	}
	return e
}

// Has returns whether the given key has a value set.
// Has is case-sensitive.
func (e *Env) Has(key string) bool {
	_, ok := e.env[key]
	return ok
}

// Get returns the value of the given key, or an empty string if the
// key has no value set.
// Get is case-sensitive.
func (e *Env) Get(key string) string {
	return e.env[key]
}
