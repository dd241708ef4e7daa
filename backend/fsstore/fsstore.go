// Package fsstore contains an implementation of the backend.Store
// interface reading a repository from the filesystem.
//
// The store only reads loose objects: repositories that have been
// repacked must be unpacked before being served
package fsstore

import (
	"github.com/gitdo/gitdo/backend"
	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/config"
	"github.com/gitdo/gitdo/internal/cache"
	"github.com/gitdo/gitdo/internal/syncutil"
	"golang.org/x/xerrors"
)

// we make sure the struct implements the interface
var _ backend.Store = (*Store)(nil)

const (
	// cacheMaxEntries is the number of decompressed objects kept in
	// memory
	cacheMaxEntries = 1024
	// cacheValueBudget is the size in bytes above which an object
	// is never cached
	cacheValueBudget = 1 << 20
	// mutexShards is the number of locks guarding the object loads.
	// Prime numbers spread the keys better
	mutexShards = 101
)

// Store is a backend.Store implementation that reads the repository
// from the filesystem
type Store struct {
	cfg  *config.Config
	conf *config.FileAggregate

	// objectCache holds the decompressed loose files, so serving
	// several sessions doesn't inflate the same objects over and
	// over
	objectCache *cache.LRU[ginternals.Oid]
	// objectMu guards the loads per oid, so concurrent sessions
	// asking for the same object only trigger one disk read
	objectMu *syncutil.NamedMutex
}

// New returns a new Store reading the repository described by cfg
func New(cfg *config.Config) (*Store, error) {
	conf, err := config.NewFileAggregate(cfg)
	if err != nil {
		return nil, xerrors.Errorf("could not load the repo config: %w", err)
	}

	objectCache, err := cache.NewLRU[ginternals.Oid](cacheMaxEntries, cacheValueBudget)
	if err != nil {
		return nil, xerrors.Errorf("could not create the object cache: %w", err)
	}

	return &Store{
		cfg:         cfg,
		conf:        conf,
		objectCache: objectCache,
		objectMu:    syncutil.NewNamedMutex(mutexShards),
	}, nil
}

// Config returns the aggregated configuration of the repository
func (s *Store) Config() *config.FileAggregate {
	return s.conf
}

// Close frees the resources
func (s *Store) Close() error {
	s.objectCache.Clear()
	return nil
}
