// Package readutil contains small helpers to scan byte buffers
package readutil

import "bytes"

// ReadTo returns the bytes of b before the first occurrence of the
// delimiter, exclusive. Returns nil if the delimiter isn't found
func ReadTo(b []byte, delim byte) []byte {
	i := bytes.IndexByte(b, delim)
	if i < 0 {
		return nil
	}
	return b[:i]
}
