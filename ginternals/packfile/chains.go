package packfile

import (
	"bytes"

	farm "github.com/dgryski/go-farm"
	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/delta"
)

const (
	// DefaultWindow is the number of preceding objects considered as
	// delta base candidates, matching git's pack.window default
	DefaultWindow = 10

	// DefaultMaxDepth is the maximum length of a delta chain,
	// matching git's pack.depth default
	DefaultMaxDepth = 50

	// minSavings is the number of bytes a delta must save over the
	// full object to be worth keeping. A tiny saving isn't worth the
	// extra chain hop the client will pay at read time
	minSavings = 32
)

// ChainEntry represents one deltified object in a pack: the chosen
// base, the depth of the resulting chain, and the bytes saved
type ChainEntry struct {
	// ObjectID is the oid of the deltified object
	ObjectID ginternals.Oid
	// BaseID is the oid of the base the delta applies to
	BaseID ginternals.Oid
	// Depth is the length of the delta chain ending at this object.
	// A base that's stored whole has depth 0, so Depth is always
	// strictly greater than the base's depth
	Depth int
	// Savings is the number of bytes saved by storing the delta
	// instead of the whole object
	Savings int

	// delta contains the delta bytes, kept around so the generator
	// doesn't have to compute them twice
	delta []byte
}

// OptimizeChains picks a delta base for every object that benefits
// from one.
// For each object, up to window preceding objects (in the order given)
// are tried as bases: the actual delta is computed and the base is
// accepted only when the savings pass minSavings and the chain stays
// within maxDepth. Since bases always precede their dependents in the
// input order, chains form a forest and cannot cycle; the depths are
// re-verified anyway and ErrDeltaCycle is returned if an entry would
// depend on itself transitively
func OptimizeChains(objects []Packable, maxDepth, window int) (map[ginternals.Oid]ChainEntry, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if window <= 0 {
		window = DefaultWindow
	}

	chains := make(map[ginternals.Oid]ChainEntry)
	depths := make(map[ginternals.Oid]int, len(objects))

	// Identical objects are much cheaper to find with a fingerprint
	// comparison than with the full matcher
	fingerprints := make([]uint64, len(objects))
	for i := range objects {
		fingerprints[i] = farm.Hash64(objects[i].Data)
	}

	for i := range objects {
		target := &objects[i]

		var best *ChainEntry
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		for j := i - 1; j >= lo; j-- {
			base := &objects[j]
			// Deltas only make sense between objects of the same
			// type: a tree never resembles a blob
			if base.Type != target.Type {
				continue
			}
			depth := depths[base.ID] + 1
			if depth > maxDepth {
				continue
			}

			// Fast path: identical content
			if fingerprints[i] == fingerprints[j] &&
				len(base.Data) == len(target.Data) &&
				bytes.Equal(base.Data, target.Data) {
				d := delta.Create(base.Data, target.Data)
				best = &ChainEntry{
					ObjectID: target.ID,
					BaseID:   base.ID,
					Depth:    depth,
					Savings:  target.Size() - len(d),
					delta:    d,
				}
				break
			}

			d := delta.Create(base.Data, target.Data)
			savings := target.Size() - len(d)
			if savings < minSavings {
				continue
			}
			if best == nil || savings > best.Savings {
				best = &ChainEntry{
					ObjectID: target.ID,
					BaseID:   base.ID,
					Depth:    depth,
					Savings:  savings,
					delta:    d,
				}
			}
		}

		if best != nil && best.Savings >= minSavings {
			chains[target.ID] = *best
			depths[target.ID] = best.Depth
		}
	}

	if err := checkChains(chains); err != nil {
		return nil, err
	}
	return chains, nil
}

// checkChains verifies that the chain forest is acyclic and that the
// depths are consistent (a base's depth is always strictly below its
// dependents')
func checkChains(chains map[ginternals.Oid]ChainEntry) error {
	for id := range chains {
		seen := map[ginternals.Oid]bool{}
		cur := id
		for {
			entry, ok := chains[cur]
			if !ok {
				break
			}
			if seen[cur] {
				return xerrors.Errorf("object %s: %w", id.String(), ErrDeltaCycle)
			}
			seen[cur] = true

			base, baseIsDelta := chains[entry.BaseID]
			if baseIsDelta && base.Depth >= entry.Depth {
				return xerrors.Errorf("base %s of %s has depth %d >= %d: %w",
					entry.BaseID.String(), cur.String(), base.Depth, entry.Depth, ErrDeltaCycle)
			}
			cur = entry.BaseID
		}
	}
	return nil
}
