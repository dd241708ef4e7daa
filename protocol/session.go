package protocol

import (
	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/capability"
)

// State represents where a negotiation session sits in its lifecycle
type State int8

const (
	// StateAwaitingWants is the initial state: no want line has
	// been received yet
	StateAwaitingWants State = iota
	// StateAwaitingHaves means the wants (and shallow lines, if
	// any) have been accepted
	StateAwaitingHaves
	// StateNegotiating means haves are being exchanged and at
	// least one round has been processed
	StateNegotiating
	// StateReady means the negotiation is over and the packfile
	// can be generated
	StateReady
	// StateFailed means the session hit a hard error and no
	// packfile will be sent
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingWants:
		return "awaiting-wants"
	case StateAwaitingHaves:
		return "awaiting-haves"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return ""
	}
}

// AckMode controls how ACK lines are emitted during the have
// exchange
type AckMode int8

const (
	// AckModeSingle withholds the ACK until the client is done,
	// then acknowledges a single common ancestor (or NAKs)
	AckModeSingle AckMode = iota
	// AckModeMulti emits "ACK <oid> continue" for every common
	// ancestor found while the exchange goes on
	AckModeMulti
	// AckModeMultiDetailed emits "ACK <oid> common" per common
	// ancestor and "ACK <oid> ready" once enough is known to build
	// the pack
	AckModeMultiDetailed
)

// Session holds the state of one fetch negotiation.
//
// A Session belongs to a single request (or connection, on stateful
// transports) and is never shared: all accesses happen from the
// goroutine serving the client
type Session struct {
	// State is the current lifecycle state. Operations move it
	// forward and never back
	State State

	// AckMode is derived from the capabilities the client picked
	AckMode AckMode

	// Caps contains the capabilities the client asked for on its
	// first want line
	Caps *capability.Set

	// Wants contains the tips the client asked for
	Wants map[ginternals.Oid]struct{}

	// Haves contains every oid the client reported having
	Haves map[ginternals.Oid]struct{}

	// Common contains the haves that turned out to be reachable
	// from the wants
	Common map[ginternals.Oid]struct{}

	// commonOrder keeps the discovery order of Common, the ACKs
	// must be emitted in that order
	commonOrder []ginternals.Oid

	// Shallow contains the commits the client declared shallow,
	// updated by the deepen computation. Those commits are treated
	// as parentless during the reachability walks
	Shallow map[ginternals.Oid]struct{}

	// Depth is the requested deepen depth, 0 when the client didn't
	// ask for one
	Depth int

	// wantReach memoizes the set of objects reachable from the
	// wants, lazily built by the first have round
	wantReach map[ginternals.Oid]struct{}

	// haveWalked memoizes the side-branch ancestries explored while
	// looking for common ancestors, so shared history is only
	// walked once per session
	haveWalked map[ginternals.Oid]struct{}
}

// NewSession returns an empty session awaiting the client's wants
func NewSession() *Session {
	return &Session{
		State:      StateAwaitingWants,
		Caps:       capability.NewSet(),
		Wants:      map[ginternals.Oid]struct{}{},
		Haves:      map[ginternals.Oid]struct{}{},
		Common:     map[ginternals.Oid]struct{}{},
		Shallow:    map[ginternals.Oid]struct{}{},
		haveWalked: map[ginternals.Oid]struct{}{},
	}
}

// SetCaps stores the capabilities received on the first want line
// and derives the ack mode from them
func (s *Session) SetCaps(caps *capability.Set) {
	if caps == nil {
		return
	}
	s.Caps = caps
	switch {
	case caps.Has(capability.MultiAckDetailed):
		s.AckMode = AckModeMultiDetailed
	case caps.Has(capability.MultiAck):
		s.AckMode = AckModeMulti
	default:
		s.AckMode = AckModeSingle
	}
}

// addCommon records a newly discovered common ancestor, preserving
// the discovery order
func (s *Session) addCommon(oid ginternals.Oid) {
	if _, ok := s.Common[oid]; ok {
		return
	}
	s.Common[oid] = struct{}{}
	s.commonOrder = append(s.commonOrder, oid)
}

// CommonAncestors returns the common ancestors in the order they
// were discovered
func (s *Session) CommonAncestors() []ginternals.Oid {
	out := make([]ginternals.Oid, len(s.commonOrder))
	copy(out, s.commonOrder)
	return out
}

// WantList returns the wants as a slice, in no particular order
func (s *Session) WantList() []ginternals.Oid {
	out := make([]ginternals.Oid, 0, len(s.Wants))
	for oid := range s.Wants {
		out = append(out, oid)
	}
	return out
}

// HaveList returns the haves as a slice, in no particular order
func (s *Session) HaveList() []ginternals.Oid {
	out := make([]ginternals.Oid, 0, len(s.Haves))
	for oid := range s.Haves {
		out = append(out, oid)
	}
	return out
}

// fail moves the session to its terminal error state
func (s *Session) fail() {
	s.State = StateFailed
}
