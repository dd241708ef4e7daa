package packfile

import (
	"sort"
	"strings"

	"github.com/gitdo/gitdo/ginternals"
)

// Strategy represents the ordering applied to the objects before they
// get written in a packfile.
// The strategy only affects the compression ratio and the order in
// which a client receives the objects, never the correctness of the
// pack
type Strategy int8

// List of all the supported ordering strategies
const (
	// StrategyTypeFirst writes the commits first, then the trees,
	// the blobs, and finally the tags
	StrategyTypeFirst Strategy = iota
	// StrategySizeDescending writes the biggest objects first, which
	// tends to put the best delta bases early
	StrategySizeDescending
	// StrategyRecency writes the most recent objects first
	StrategyRecency
	// StrategyPathGrouped writes objects sharing a path prefix next
	// to each other, so successive versions of the same file are
	// close
	StrategyPathGrouped
	// StrategyDeltaTopo keeps the order provided by the delta chain
	// optimizer: every base before its dependents
	StrategyDeltaTopo
)

// typeRank returns the rank of an object type for StrategyTypeFirst
func typeRank(p *Packable) int {
	// object.Type values already order commit < tree < blob < tag
	return int(p.Type)
}

// Order returns a copy of objects sorted per the given strategy.
// Ties are broken by oid so the output stays deterministic
func Order(objects []Packable, strategy Strategy) []Packable {
	out := make([]Packable, len(objects))
	copy(out, objects)

	tieBreak := func(a, b *Packable) bool {
		return strings.Compare(a.ID.String(), b.ID.String()) < 0
	}

	switch strategy {
	case StrategyTypeFirst:
		sort.SliceStable(out, func(i, j int) bool {
			if typeRank(&out[i]) != typeRank(&out[j]) {
				return typeRank(&out[i]) < typeRank(&out[j])
			}
			return tieBreak(&out[i], &out[j])
		})
	case StrategySizeDescending:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Size() != out[j].Size() {
				return out[i].Size() > out[j].Size()
			}
			return tieBreak(&out[i], &out[j])
		})
	case StrategyRecency:
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].Timestamp.Equal(out[j].Timestamp) {
				return out[i].Timestamp.After(out[j].Timestamp)
			}
			return tieBreak(&out[i], &out[j])
		})
	case StrategyPathGrouped:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Path != out[j].Path {
				return out[i].Path < out[j].Path
			}
			return tieBreak(&out[i], &out[j])
		})
	case StrategyDeltaTopo:
		// the optimizer's order is already topological, nothing to do
	}
	return out
}

// orderForChains reorders objects so every delta base comes before
// its dependents, keeping the relative order of everything else.
// chains maps an object to its chosen base
func orderForChains(objects []Packable, chains map[ginternals.Oid]ChainEntry) []Packable {
	index := make(map[ginternals.Oid]int, len(objects))
	for i := range objects {
		index[objects[i].ID] = i
	}

	out := make([]Packable, 0, len(objects))
	written := make(map[ginternals.Oid]bool, len(objects))

	var place func(i int)
	place = func(i int) {
		o := &objects[i]
		if written[o.ID] {
			return
		}
		// bases first
		if entry, ok := chains[o.ID]; ok {
			if j, inPack := index[entry.BaseID]; inPack {
				place(j)
			}
		}
		written[o.ID] = true
		out = append(out, *o)
	}

	for i := range objects {
		place(i)
	}
	return out
}
