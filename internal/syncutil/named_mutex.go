// Package syncutil contains synchronization primitives shared by
// the stores
package syncutil

import (
	"sync"

	"github.com/gogf/gf/encoding/ghash"
)

// NamedMutex allows locking/unlocking by key. Keys are spread over a
// fixed set of mutexes, so two distinct keys may share a lock
type NamedMutex struct {
	locks []sync.Mutex
	size  uint32
}

// NewNamedMutex creates a NamedMutex spreading its keys over
// maxMutexes locks. Values below 2 are raised to 2; a prime number
// spreads the keys better
func NewNamedMutex(maxMutexes uint32) *NamedMutex {
	if maxMutexes < 2 {
		maxMutexes = 2
	}
	return &NamedMutex{
		size:  maxMutexes,
		locks: make([]sync.Mutex, maxMutexes),
	}
}

// Lock locks the provided key, blocking until the underlying mutex
// is available
func (mu *NamedMutex) Lock(key []byte) {
	mu.locks[ghash.SDBMHash(key)%mu.size].Lock()
}

// Unlock unlocks the provided key. It is a run-time error if the key
// is not locked on entry to Unlock
func (mu *NamedMutex) Unlock(key []byte) {
	mu.locks[ghash.SDBMHash(key)%mu.size].Unlock()
}
