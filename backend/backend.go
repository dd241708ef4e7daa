// Package backend contains the interfaces used by the transfer
// engine to read objects and references from an odb.
// The engine never writes: pushing and ref updates are handled by
// other layers
package backend

import (
	"context"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/object"
	"golang.org/x/xerrors"
)

// Store represents a read-only object database.
// Implementations must be safe for concurrent readers: several
// fetch sessions may be served from the same Store at once
type Store interface {
	// HasObject returns whether an object exists in the odb
	HasObject(oid ginternals.Oid) (bool, error)
	// Object returns the object that has given oid.
	// ginternals.ErrObjectNotFound is returned if the object
	// doesn't exist
	Object(oid ginternals.Oid) (*object.Object, error)
	// Refs returns all the references of the repository, in the
	// order they should be advertised
	Refs() ([]ginternals.Reference, error)
	// Head returns the resolved HEAD reference.
	// ginternals.ErrRefNotFound is returned on an empty repository
	Head() (ginternals.Reference, error)
	// Close frees the resources
	Close() error
}

// CommitParents returns the parents of the given commit
func CommitParents(s Store, oid ginternals.Oid) ([]ginternals.Oid, error) {
	o, err := s.Object(oid)
	if err != nil {
		return nil, xerrors.Errorf("could not get commit %s: %w", oid.String(), err)
	}
	ci, err := o.AsCommit()
	if err != nil {
		return nil, xerrors.Errorf("could not parse commit %s: %w", oid.String(), err)
	}
	return ci.ParentIDs(), nil
}

// cancelCheckInterval is the number of visited objects between two
// context checks during a walk
const cancelCheckInterval = 64

// WalkFunc is the callback of ReachableObjects.
// Returning an error stops the walk
type WalkFunc func(o *object.Object) error

// WalkOptions represents the knobs of ReachableObjects
type WalkOptions struct {
	// MaxGeneration bounds the commit ancestry (0 means unbounded):
	// with MaxGeneration 1 only the starting commit is visited, its
	// parents are not
	MaxGeneration int

	// NoParents lists commits whose parents must not be traversed,
	// whatever their generation. This is how a shallow boundary is
	// honored
	NoParents map[ginternals.Oid]struct{}

	// Visited memoizes the walked objects so a tree shared by
	// thousands of commits is only walked once. The map belongs to
	// the caller and can be carried over between walks from
	// different starting points; a nil map disables memoization
	// across calls but one is still created internally
	Visited map[ginternals.Oid]struct{}
}

// ReachableObjects walks every object reachable from start: the
// commits' ancestry, their trees, and everything the trees point to
func ReachableObjects(ctx context.Context, s Store, start ginternals.Oid, opts *WalkOptions, f WalkFunc) error {
	if opts == nil {
		opts = &WalkOptions{}
	}
	visited := opts.Visited
	if visited == nil {
		visited = map[ginternals.Oid]struct{}{}
	}

	type node struct {
		oid ginternals.Oid
		gen int
	}
	queue := []node{{oid: start, gen: 1}}
	steps := 0

	for len(queue) > 0 {
		steps++
		if steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return xerrors.Errorf("walk canceled: %w", err)
			}
		}

		n := queue[0]
		queue = queue[1:]
		if _, ok := visited[n.oid]; ok {
			continue
		}
		visited[n.oid] = struct{}{}

		o, err := s.Object(n.oid)
		if err != nil {
			return xerrors.Errorf("could not get object %s: %w", n.oid.String(), err)
		}
		if err := f(o); err != nil {
			return err
		}

		switch o.Type() {
		case object.TypeCommit:
			ci, err := o.AsCommit()
			if err != nil {
				return xerrors.Errorf("could not parse commit %s: %w", n.oid.String(), err)
			}
			queue = append(queue, node{oid: ci.TreeID(), gen: n.gen})
			_, boundary := opts.NoParents[n.oid]
			if !boundary && (opts.MaxGeneration == 0 || n.gen < opts.MaxGeneration) {
				for _, p := range ci.ParentIDs() {
					queue = append(queue, node{oid: p, gen: n.gen + 1})
				}
			}
		case object.TypeTree:
			tree, err := o.AsTree()
			if err != nil {
				return xerrors.Errorf("could not parse tree %s: %w", n.oid.String(), err)
			}
			for _, e := range tree.Entries() {
				// Submodules point to commits of another repository
				if e.Mode == object.ModeGitLink {
					continue
				}
				queue = append(queue, node{oid: e.ID, gen: n.gen})
			}
		case object.TypeTag:
			tag, err := o.AsTag()
			if err != nil {
				return xerrors.Errorf("could not parse tag %s: %w", n.oid.String(), err)
			}
			queue = append(queue, node{oid: tag.Target(), gen: n.gen})
		case object.TypeBlob:
			// leaf
		case object.ObjectDeltaOFS, object.ObjectDeltaRef:
			// a Store only hands out resolved objects
		}
	}
	return nil
}
