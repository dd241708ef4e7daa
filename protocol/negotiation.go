package protocol

import (
	"context"
	"strings"

	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/backend"
	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/object"
)

// AckStatus is the optional status suffix of an ACK line
type AckStatus string

const (
	// AckStatusNone marks a plain "ACK <oid>" line, only sent as
	// the final acknowledgment
	AckStatusNone AckStatus = ""
	// AckStatusContinue tells a multi_ack client to keep sending
	// haves
	AckStatusContinue AckStatus = "continue"
	// AckStatusCommon tells a multi_ack_detailed client the object
	// is a common ancestor
	AckStatusCommon AckStatus = "common"
	// AckStatusReady tells a multi_ack_detailed client the server
	// could already build the pack
	AckStatusReady AckStatus = "ready"
)

// Ack represents a single ACK line to send to the client
type Ack struct {
	ID     ginternals.Oid
	Status AckStatus
}

// String returns the wire form of the ack, newline included
func (a Ack) String() string {
	if a.Status == AckStatusNone {
		return "ACK " + a.ID.String() + "\n"
	}
	return "ACK " + a.ID.String() + " " + string(a.Status) + "\n"
}

// ParseAck parses an ACK or NAK line, newline optional.
// nak reports a NAK line, in which case ack is zero
func ParseAck(line string) (ack Ack, nak bool, err error) {
	line = strings.TrimSuffix(line, "\n")
	if line == "NAK" {
		return Ack{}, true, nil
	}
	rest, ok := strings.CutPrefix(line, "ACK ")
	if !ok {
		return Ack{}, false, xerrors.Errorf("line %q: %w", line, ErrMalformedLine)
	}

	sha, status, _ := strings.Cut(rest, " ")
	oid, err := ginternals.NewOidFromStr(sha)
	if err != nil {
		return Ack{}, false, xerrors.Errorf("invalid oid in %q: %w", line, ErrMalformedLine)
	}
	switch AckStatus(status) {
	case AckStatusNone, AckStatusContinue, AckStatusCommon, AckStatusReady:
		return Ack{ID: oid, Status: AckStatus(status)}, false, nil
	default:
		return Ack{}, false, xerrors.Errorf("status %q: %w", status, ErrInvalidAckStatus)
	}
}

// HaveResult is the outcome of one round of haves
type HaveResult struct {
	// Acks contains the ACK lines to send, in discovery order
	Acks []Ack
	// Nak reports whether a NAK line must be sent instead: the
	// round is over and no common ancestor was ever found. Not an
	// error, it means everything reachable from the wants gets sent
	Nak bool
	// Ready reports whether the negotiation is complete and the
	// packfile can be generated
	Ready bool
}

// ProcessWants validates and records the tips the client asked for.
//
// Each want must resolve to an existing object: a want for an
// unknown oid is a hard error and fails the whole session
func ProcessWants(s *Session, store backend.Store, wants []ginternals.Oid) error {
	if s.State != StateAwaitingWants && s.State != StateAwaitingHaves {
		return xerrors.Errorf("cannot process wants in state %q: %w", s.State, ErrInvalidState)
	}

	for _, oid := range wants {
		ok, err := store.HasObject(oid)
		if err != nil {
			s.fail()
			return xerrors.Errorf("could not check want %s: %w", oid.String(), err)
		}
		if !ok {
			s.fail()
			return xerrors.Errorf("want %s: %w", oid.String(), ErrUnknownWant)
		}
		s.Wants[oid] = struct{}{}
	}

	if len(s.Wants) > 0 {
		s.State = StateAwaitingHaves
	}
	return nil
}

// ProcessHaves records one round of haves and computes the ACK/NAK
// lines to send back.
//
// A have is a common ancestor when it is reachable from one of the
// wants. The acks are emitted in the order the common ancestors are
// discovered; their shape depends on the session's AckMode. done
// marks the client's final round: the result then carries the
// closing plain ACK (or Nak) and Ready is set
func ProcessHaves(ctx context.Context, s *Session, store backend.Store, haves []ginternals.Oid, done bool) (*HaveResult, error) {
	switch s.State {
	case StateAwaitingHaves, StateNegotiating:
	default:
		return nil, xerrors.Errorf("cannot process haves in state %q: %w", s.State, ErrInvalidState)
	}
	s.State = StateNegotiating

	if err := s.buildWantReach(ctx, store); err != nil {
		return nil, err
	}

	res := &HaveResult{}
	for _, oid := range haves {
		s.Haves[oid] = struct{}{}

		common := oid
		if _, ok := s.wantReach[oid]; !ok {
			// A have on a side branch can still overlap through
			// its ancestry: the closest want-reachable ancestor is
			// the common point
			ancestor, found, err := s.reachableAncestor(ctx, store, oid)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			common = ancestor
		}
		if _, known := s.Common[common]; known {
			continue
		}
		s.addCommon(common)

		switch s.AckMode {
		case AckModeMulti:
			res.Acks = append(res.Acks, Ack{ID: common, Status: AckStatusContinue})
		case AckModeMultiDetailed:
			res.Acks = append(res.Acks, Ack{ID: common, Status: AckStatusCommon})
		case AckModeSingle:
			// single-ack withholds everything until done
		}
	}

	if !done {
		// A multi_ack_detailed client keeps sending haves until
		// the server says it has seen enough
		if s.AckMode == AckModeMultiDetailed && len(s.commonOrder) > 0 {
			last := s.commonOrder[len(s.commonOrder)-1]
			res.Acks = append(res.Acks, Ack{ID: last, Status: AckStatusReady})
		}
		if len(s.commonOrder) == 0 {
			res.Nak = true
		}
		return res, nil
	}

	s.State = StateReady
	res.Ready = true

	if len(s.commonOrder) == 0 {
		res.Nak = true
		return res, nil
	}

	// The closing line is a plain ACK: the first common ancestor in
	// single-ack mode, the latest one in multi-ack modes
	closing := s.commonOrder[len(s.commonOrder)-1]
	if s.AckMode == AckModeSingle {
		closing = s.commonOrder[0]
	}
	res.Acks = append(res.Acks, Ack{ID: closing, Status: AckStatusNone})
	return res, nil
}

// reachableAncestor walks the commit ancestry of a have that isn't
// itself want-reachable, looking for its closest want-reachable
// ancestor. Haves the repository doesn't contain, or that point at
// something without an ancestry, simply yield no ancestor
func (s *Session) reachableAncestor(ctx context.Context, store backend.Store, oid ginternals.Oid) (ginternals.Oid, bool, error) {
	queue := []ginternals.Oid{oid}
	steps := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if _, ok := s.wantReach[cur]; ok {
			return cur, true, nil
		}
		if _, seen := s.haveWalked[cur]; seen {
			continue
		}
		s.haveWalked[cur] = struct{}{}

		steps++
		if steps%walkCancelInterval == 0 {
			if err := ctx.Err(); err != nil {
				return ginternals.NullOid, false, err
			}
		}

		ok, err := store.HasObject(cur)
		if err != nil {
			return ginternals.NullOid, false, xerrors.Errorf("could not check have %s: %w", cur.String(), err)
		}
		if !ok {
			continue
		}
		if _, shallow := s.Shallow[cur]; shallow {
			continue
		}
		parents, err := backend.CommitParents(store, cur)
		if err != nil {
			// haves pointing at blobs or trees have no ancestry
			continue
		}
		queue = append(queue, parents...)
	}
	return ginternals.NullOid, false, nil
}

// buildWantReach lazily walks everything reachable from the wants so
// the have rounds turn into map lookups. The walk honors the shallow
// boundary
func (s *Session) buildWantReach(ctx context.Context, store backend.Store) error {
	if s.wantReach != nil {
		return nil
	}
	s.wantReach = map[ginternals.Oid]struct{}{}
	opts := &backend.WalkOptions{
		NoParents: s.Shallow,
		Visited:   s.wantReach,
	}
	for oid := range s.Wants {
		err := backend.ReachableObjects(ctx, store, oid, opts, func(*object.Object) error {
			return nil
		})
		if err != nil {
			return xerrors.Errorf("could not walk want %s: %w", oid.String(), err)
		}
	}
	return nil
}

// MissingObjects computes the objects reachable from the wants but
// not from the haves: the exact content of the packfile.
//
// Haves the repository doesn't contain are skipped (the client may
// own objects from elsewhere). Shallow commits are treated as
// parentless on both sides of the difference. Visited objects are
// memoized across the walks so shared subtrees are only traversed
// once
func MissingObjects(ctx context.Context, store backend.Store, wants, haves []ginternals.Oid, shallow map[ginternals.Oid]struct{}) ([]ginternals.Oid, error) {
	// First the closure of the haves, everything in there must not
	// be sent
	visited := map[ginternals.Oid]struct{}{}
	opts := &backend.WalkOptions{
		NoParents: shallow,
		Visited:   visited,
	}
	for _, oid := range haves {
		ok, err := store.HasObject(oid)
		if err != nil {
			return nil, xerrors.Errorf("could not check have %s: %w", oid.String(), err)
		}
		if !ok {
			continue
		}
		err = backend.ReachableObjects(ctx, store, oid, opts, func(*object.Object) error {
			return nil
		})
		if err != nil {
			return nil, xerrors.Errorf("could not walk have %s: %w", oid.String(), err)
		}
	}

	// The have closure seeds the visited set, so the want walks
	// only ever reach (and report) objects the client is missing
	var missing []ginternals.Oid
	for _, oid := range wants {
		err := backend.ReachableObjects(ctx, store, oid, opts, func(o *object.Object) error {
			missing = append(missing, o.ID())
			return nil
		})
		if err != nil {
			return nil, xerrors.Errorf("could not walk want %s: %w", oid.String(), err)
		}
	}
	return missing, nil
}
