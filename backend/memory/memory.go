// Package memory contains an in-memory implementation of
// backend.Store, used by the tests and to serve fixture
// repositories.
// The write methods only exist to build the store and are not part
// of the backend.Store interface
package memory

import (
	"sync"

	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/object"
)

// Store represents an in-memory odb.
// The zero value is not usable, use New()
type Store struct {
	objects map[ginternals.Oid]*object.Object
	refs    map[string]ginternals.Oid
	// refOrder keeps the insertion order of the refs so the
	// advertisement stays deterministic
	refOrder []string
	head     string

	mu sync.RWMutex
}

// New returns a new empty Store
func New() *Store {
	return &Store{
		objects: map[ginternals.Oid]*object.Object{},
		refs:    map[string]ginternals.Oid{},
		head:    ginternals.Master,
	}
}

// AddObject adds an object to the store and returns its oid
func (s *Store) AddObject(o *object.Object) ginternals.Oid {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[o.ID()] = o
	return o.ID()
}

// SetRef creates or updates a reference
func (s *Store) SetRef(name string, target ginternals.Oid) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[name]; !ok {
		s.refOrder = append(s.refOrder, name)
	}
	s.refs[name] = target
}

// SetHead points HEAD at the given branch name (short form, without
// the refs/heads/ prefix)
func (s *Store) SetHead(branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.head = branch
}

// HasObject returns whether an object exists in the odb
func (s *Store) HasObject(oid ginternals.Oid) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[oid]
	return ok, nil
}

// Object returns the object that has given oid
func (s *Store) Object(oid ginternals.Oid) (*object.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[oid]
	if !ok {
		return nil, xerrors.Errorf("object %s: %w", oid.String(), ginternals.ErrObjectNotFound)
	}
	return o, nil
}

// Refs returns all the references of the repository in insertion
// order
func (s *Store) Refs() ([]ginternals.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ginternals.Reference, 0, len(s.refOrder))
	for _, name := range s.refOrder {
		out = append(out, ginternals.NewReference(name, s.refs[name]))
	}
	return out, nil
}

// Head returns the resolved HEAD reference
func (s *Store) Head() (ginternals.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.refs["refs/heads/"+s.head]
	if !ok {
		return ginternals.Reference{}, xerrors.Errorf("HEAD targets refs/heads/%s: %w", s.head, ginternals.ErrRefNotFound)
	}
	return ginternals.NewReference(ginternals.Head, target), nil
}

// Close frees the resources
func (s *Store) Close() error {
	return nil
}
