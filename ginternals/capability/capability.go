// Package capability contains methods and structs to parse, build,
// and negotiate the capability lists exchanged during the handshake
// of the git smart protocols.
// https://git-scm.com/docs/protocol-capabilities
package capability

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/xerrors"
)

var (
	// ErrMalformed is an error thrown when a capability token
	// contains forbidden characters
	ErrMalformed = errors.New("malformed capability")

	// ErrMissingSeparator is an error thrown when the first
	// advertised ref line has no NUL byte separating the ref from
	// the capability list
	ErrMissingSeparator = errors.New("first ref line has no capability separator")
)

// Name represents a known capability name.
// Unknown extension tokens are carried as-is in a Set, so clients
// advertising custom capabilities still round-trip unchanged
type Name string

// List of the capabilities the engine knows about
const (
	MultiAck         Name = "multi_ack"
	MultiAckDetailed Name = "multi_ack_detailed"
	ThinPack         Name = "thin-pack"
	SideBand         Name = "side-band"
	SideBand64k      Name = "side-band-64k"
	OfsDelta         Name = "ofs-delta"
	Agent            Name = "agent"
	Shallow          Name = "shallow"
	DeepenSince      Name = "deepen-since"
	DeepenNot        Name = "deepen-not"
	DeepenRelative   Name = "deepen-relative"
	NoProgress       Name = "no-progress"
	IncludeTag       Name = "include-tag"
	NoDone           Name = "no-done"
	SymRef           Name = "symref"
	AllowTipSHA1     Name = "allow-tip-sha1-in-want"
)

// IsKnown returns whether the name belongs to the closed list of
// capabilities the engine understands
func (n Name) IsKnown() bool {
	switch n {
	case MultiAck, MultiAckDetailed, ThinPack, SideBand, SideBand64k,
		OfsDelta, Agent, Shallow, DeepenSince, DeepenNot, DeepenRelative,
		NoProgress, IncludeTag, NoDone, SymRef, AllowTipSHA1:
		return true
	default:
		return false
	}
}

// Entry represents a single capability token: either a bare name
// ("side-band-64k") or a name=value pair ("agent=gitdo/1.0")
type Entry struct {
	Name     string
	Value    string
	HasValue bool
}

// String returns the wire form of the entry
func (e Entry) String() string {
	if e.HasValue {
		return e.Name + "=" + e.Value
	}
	return e.Name
}

// Set represents a set of capabilities.
// A Set is built once per negotiation session and should not be
// mutated afterward
type Set struct {
	entries map[string]Entry
	// order keeps the insertion order so the wire form stays
	// deterministic
	order []string
}

// NewSet returns a Set containing the given entries
func NewSet(entries ...Entry) *Set {
	s := &Set{
		entries: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		s.add(e)
	}
	return s
}

func (s *Set) add(e Entry) {
	if _, ok := s.entries[e.Name]; !ok {
		s.order = append(s.order, e.Name)
	}
	s.entries[e.Name] = e
}

// Has returns whether the set contains the given capability
func (s *Set) Has(name Name) bool {
	_, ok := s.entries[string(name)]
	return ok
}

// Value returns the value attached to the given capability.
// ok is false if the capability is absent or has no value
func (s *Set) Value(name Name) (value string, ok bool) {
	e, ok := s.entries[string(name)]
	if !ok || !e.HasValue {
		return "", false
	}
	return e.Value, true
}

// Len returns the number of capabilities in the set
func (s *Set) Len() int {
	return len(s.order)
}

// Entries returns the entries of the set, in insertion order
func (s *Set) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name])
	}
	return out
}

// String returns the wire form of the set: the entries joined by
// single spaces, in insertion order
func (s *Set) String() string {
	tokens := make([]string, 0, len(s.order))
	for _, name := range s.order {
		tokens = append(tokens, s.entries[name].String())
	}
	return strings.Join(tokens, " ")
}

// parseToken parses a single "name" or "name=value" token
func parseToken(token string) (Entry, error) {
	if strings.ContainsAny(token, "\x00\n") {
		return Entry{}, xerrors.Errorf("token %q: %w", token, ErrMalformed)
	}
	name, value, hasValue := strings.Cut(token, "=")
	if name == "" {
		return Entry{}, xerrors.Errorf("token %q has no name: %w", token, ErrMalformed)
	}
	return Entry{
		Name:     name,
		Value:    value,
		HasValue: hasValue,
	}, nil
}

// Parse parses a whitespace-separated capability list
func Parse(capString string) (*Set, error) {
	if strings.ContainsRune(capString, 0) {
		return nil, xerrors.Errorf("capability list contains a NUL byte: %w", ErrMalformed)
	}
	s := NewSet()
	for _, token := range strings.Fields(capString) {
		e, err := parseToken(token)
		if err != nil {
			return nil, err
		}
		s.add(e)
	}
	return s, nil
}

// ParseFromRefLine extracts the ref part and the capability list from
// an advertised ref line.
// With protocol v1 the capabilities are only present on the first
// advertised line, after a NUL byte:
//
//	{sha} {refname}\0{capabilities}\n
//
// The first line not having a NUL separator is an error, even when
// the server has no capability to advertise
func ParseFromRefLine(line []byte, isFirstRef bool) (refPart []byte, caps *Set, err error) {
	line = bytes.TrimSuffix(line, []byte{'\n'})

	i := bytes.IndexByte(line, 0)
	if !isFirstRef {
		if i >= 0 {
			return nil, nil, xerrors.Errorf("unexpected NUL on a non-first ref line: %w", ErrMalformed)
		}
		return line, nil, nil
	}
	if i < 0 {
		return nil, nil, ErrMissingSeparator
	}

	caps, err = Parse(string(line[i+1:]))
	if err != nil {
		return nil, nil, err
	}
	return line[:i], caps, nil
}

// SelectCommon returns the client's preferred entries that the server
// also supports.
// The returned list keeps the client's order and the client's values
// (an agent=... entry keeps the client's agent string), so the result
// reflects the client's priority rather than the server's
func SelectCommon(server *Set, clientPrefs []Entry) []Entry {
	out := make([]Entry, 0, len(clientPrefs))
	for _, e := range clientPrefs {
		if server.Has(Name(e.Name)) {
			out = append(out, e)
		}
	}
	return out
}

// ValidateRequired returns the names from required that are missing
// from the set. It's up to the caller to decide whether any missing
// capability is fatal
func ValidateRequired(s *Set, required []Name) (missing []Name) {
	for _, name := range required {
		if !s.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
