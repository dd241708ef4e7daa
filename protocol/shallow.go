package protocol

import (
	"context"
	"time"

	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/backend"
	"github.com/gitdo/gitdo/ginternals"
)

// ShallowResult is the outcome of a deepen computation
type ShallowResult struct {
	// Shallow contains the commits that become the new shallow
	// boundary, to report as "shallow <oid>" lines
	Shallow []ginternals.Oid
	// Unshallow contains the commits the client had marked shallow
	// that are now inside the window, to report as
	// "unshallow <oid>" lines
	Unshallow []ginternals.Oid
}

// DeepenRequest carries the client's deepen instructions. At most
// one of Depth, Since, and Not is used, in that priority order
type DeepenRequest struct {
	// Depth truncates the history to that many generations from
	// the wanted tips (1 keeps only the tips themselves)
	Depth int
	// Since truncates the history to the commits younger than the
	// given time
	Since time.Time
	// Not truncates the history at the ancestry of the given tips
	Not []ginternals.Oid
}

// isZero reports whether the client sent no deepen instruction
func (r DeepenRequest) isZero() bool {
	return r.Depth == 0 && r.Since.IsZero() && len(r.Not) == 0
}

// ProcessShallow computes the new shallow boundary of the client.
//
// The commit ancestry is walked from every want; a commit whose
// parents fall outside the requested window becomes shallow. Commits
// the client previously declared shallow that are now inside the
// window are reported unshallow. The session's shallow set is
// replaced by the new boundary, so the later reachability walks stop
// at it
func ProcessShallow(ctx context.Context, s *Session, store backend.Store, req DeepenRequest) (*ShallowResult, error) {
	if s.State != StateAwaitingHaves {
		return nil, xerrors.Errorf("cannot process deepen in state %q: %w", s.State, ErrInvalidState)
	}
	if req.isZero() {
		return &ShallowResult{}, nil
	}
	s.Depth = req.Depth

	// The ancestry of the "not" tips is excluded wholesale
	excluded := map[ginternals.Oid]struct{}{}
	for _, tip := range req.Not {
		if err := commitAncestry(ctx, store, tip, excluded); err != nil {
			return nil, xerrors.Errorf("could not walk deepen-not tip %s: %w", tip.String(), err)
		}
	}

	type node struct {
		oid ginternals.Oid
		gen int
	}
	queue := make([]node, 0, len(s.Wants))
	for oid := range s.Wants {
		queue = append(queue, node{oid: oid, gen: 1})
	}

	boundary := map[ginternals.Oid]struct{}{}
	visited := map[ginternals.Oid]struct{}{}
	steps := 0
	for len(queue) > 0 {
		steps++
		if steps%walkCancelInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, xerrors.Errorf("deepen walk canceled: %w", err)
			}
		}

		n := queue[0]
		queue = queue[1:]
		if _, ok := visited[n.oid]; ok {
			continue
		}
		visited[n.oid] = struct{}{}

		parents, err := backend.CommitParents(store, n.oid)
		if err != nil {
			return nil, err
		}

		if req.Depth > 0 && n.gen >= req.Depth {
			if len(parents) > 0 {
				boundary[n.oid] = struct{}{}
			}
			continue
		}

		isBoundary := false
		for _, p := range parents {
			cut, err := cutParent(ctx, store, p, req, excluded)
			if err != nil {
				return nil, err
			}
			if cut {
				isBoundary = true
				continue
			}
			queue = append(queue, node{oid: p, gen: n.gen + 1})
		}
		if isBoundary {
			boundary[n.oid] = struct{}{}
		}
	}

	res := &ShallowResult{}
	for oid := range visited {
		if _, ok := boundary[oid]; ok {
			continue
		}
		// Previously shallow, now fully inside the window
		if _, was := s.Shallow[oid]; was {
			res.Unshallow = append(res.Unshallow, oid)
		}
	}
	for oid := range boundary {
		res.Shallow = append(res.Shallow, oid)
	}

	s.Shallow = boundary
	return res, nil
}

// cutParent reports whether the walk must stop before the given
// parent commit
func cutParent(ctx context.Context, store backend.Store, parent ginternals.Oid, req DeepenRequest, excluded map[ginternals.Oid]struct{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, xerrors.Errorf("deepen walk canceled: %w", err)
	}
	if _, ok := excluded[parent]; ok {
		return true, nil
	}
	if req.Since.IsZero() {
		return false, nil
	}

	o, err := store.Object(parent)
	if err != nil {
		return false, xerrors.Errorf("could not get commit %s: %w", parent.String(), err)
	}
	ci, err := o.AsCommit()
	if err != nil {
		return false, xerrors.Errorf("could not parse commit %s: %w", parent.String(), err)
	}
	return ci.Committer().Time.Before(req.Since), nil
}

// commitAncestry collects the full commit ancestry of tip into out
func commitAncestry(ctx context.Context, store backend.Store, tip ginternals.Oid, out map[ginternals.Oid]struct{}) error {
	queue := []ginternals.Oid{tip}
	steps := 0
	for len(queue) > 0 {
		steps++
		if steps%walkCancelInterval == 0 {
			if err := ctx.Err(); err != nil {
				return xerrors.Errorf("ancestry walk canceled: %w", err)
			}
		}

		oid := queue[0]
		queue = queue[1:]
		if _, ok := out[oid]; ok {
			continue
		}
		out[oid] = struct{}{}

		parents, err := backend.CommitParents(store, oid)
		if err != nil {
			return err
		}
		queue = append(queue, parents...)
	}
	return nil
}

// walkCancelInterval is the number of commits between two context
// checks during the deepen walks
const walkCancelInterval = 64
