package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/backend"
	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/capability"
	"github.com/gitdo/gitdo/ginternals/object"
	"github.com/gitdo/gitdo/ginternals/packfile"
	"github.com/gitdo/gitdo/ginternals/pktline"
	"github.com/gitdo/gitdo/internal/gitpath"
)

// AgentName is the agent string advertised to clients
const AgentName = "gitdo/1.0"

// ServerCapabilities returns the set of capabilities this server
// advertises
func ServerCapabilities() *capability.Set {
	bare := func(n capability.Name) capability.Entry {
		return capability.Entry{Name: string(n)}
	}
	return capability.NewSet(
		bare(capability.MultiAck),
		bare(capability.MultiAckDetailed),
		bare(capability.ThinPack),
		bare(capability.SideBand),
		bare(capability.SideBand64k),
		bare(capability.OfsDelta),
		bare(capability.Shallow),
		bare(capability.DeepenSince),
		bare(capability.DeepenNot),
		bare(capability.NoProgress),
		bare(capability.IncludeTag),
		capability.Entry{Name: string(capability.Agent), Value: AgentName, HasValue: true},
	)
}

// UploadPackOptions represents the knobs of UploadPack.
// The zero value is usable
type UploadPackOptions struct {
	// Caps overrides the advertised capability set.
	// Defaults to ServerCapabilities()
	Caps *capability.Set

	// Pack carries the packfile generation knobs (window, depth,
	// compression). The delta base fields are overridden from the
	// negotiated capabilities
	Pack packfile.Options
}

// UploadPack serves a full fetch exchange: it reads the client's
// wants, shallow instructions, and haves from r, negotiates the
// common ancestors, and writes the ACK/NAK lines followed by the
// packfile to w.
//
// The packfile is always the last thing written. When the client
// asked for side-band the pack is multiplexed on channel 1 with
// progress on channel 2, and any late failure is reported on
// channel 3 before returning.
//
// On a stateless transport the client sends its haves over several
// requests: when r ends before a "done" line, UploadPack returns nil
// without sending a packfile and the caller is expected to replay
// the accumulated request on the next round trip
func UploadPack(ctx context.Context, store backend.Store, r io.Reader, w io.Writer, opts UploadPackOptions) error {
	if opts.Caps == nil {
		opts.Caps = ServerCapabilities()
	}

	s := NewSession()
	pktr := pktline.NewReader(r)
	pktw := pktline.NewWriter(w)

	deepen, err := readRequest(s, store, pktr, opts.Caps)
	if err != nil {
		s.fail()
		return err
	}
	if len(s.Wants) == 0 {
		// An empty request (client is already up to date)
		return nil
	}

	if !deepen.isZero() {
		shallowRes, err := ProcessShallow(ctx, s, store, deepen)
		if err != nil {
			s.fail()
			return err
		}
		if err := writeShallowInfo(pktw, shallowRes); err != nil {
			return err
		}
	}

	done, err := negotiate(ctx, s, store, pktr, pktw)
	if err != nil {
		s.fail()
		return err
	}
	if !done {
		// Stateless round trip: more haves are coming in the next
		// request
		return nil
	}

	return sendPack(ctx, s, store, w, opts)
}

// readRequest parses the first section of the request: the want
// lines (the first one carrying the capabilities), the client's
// current shallow lines, and the deepen instructions. The section
// ends on a flush-pkt
func readRequest(s *Session, store backend.Store, pktr *pktline.Reader, serverCaps *capability.Set) (DeepenRequest, error) {
	var deepen DeepenRequest
	var wants []ginternals.Oid
	first := true

	for {
		pkt, err := pktr.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return deepen, xerrors.Errorf("could not read request line: %w", err)
		}
		if pkt.Kind == pktline.KindFlush {
			break
		}

		line := string(bytes.TrimSuffix(pkt.Payload, []byte{'\n'}))
		verb, arg, _ := strings.Cut(line, " ")
		switch verb {
		case "want":
			capStr := ""
			if first {
				arg, capStr, _ = strings.Cut(arg, " ")
				first = false
			}
			oid, err := ginternals.NewOidFromStr(arg)
			if err != nil {
				return deepen, xerrors.Errorf("invalid want %q: %w", arg, ErrMalformedLine)
			}
			wants = append(wants, oid)

			if capStr != "" {
				caps, err := capability.Parse(capStr)
				if err != nil {
					return deepen, xerrors.Errorf("could not parse capabilities: %w", err)
				}
				s.SetCaps(caps)
			}
		case "shallow":
			oid, err := ginternals.NewOidFromStr(arg)
			if err != nil {
				return deepen, xerrors.Errorf("invalid shallow %q: %w", arg, ErrMalformedLine)
			}
			s.Shallow[oid] = struct{}{}
		case "deepen":
			depth, err := strconv.Atoi(arg)
			if err != nil || depth < 0 {
				return deepen, xerrors.Errorf("invalid deepen %q: %w", arg, ErrMalformedLine)
			}
			deepen.Depth = depth
		case "deepen-since":
			ts, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return deepen, xerrors.Errorf("invalid deepen-since %q: %w", arg, ErrMalformedLine)
			}
			deepen.Since = time.Unix(ts, 0)
		case "deepen-not":
			oid, err := resolveRev(store, arg)
			if err != nil {
				return deepen, xerrors.Errorf("invalid deepen-not %q: %w", arg, ErrMalformedLine)
			}
			deepen.Not = append(deepen.Not, oid)
		default:
			return deepen, xerrors.Errorf("unexpected verb %q: %w", verb, ErrMalformedLine)
		}
	}

	return deepen, ProcessWants(s, store, wants)
}

// resolveRev resolves a deepen-not argument: either a full oid or a
// reference name
func resolveRev(store backend.Store, rev string) (ginternals.Oid, error) {
	if oid, err := ginternals.NewOidFromStr(rev); err == nil {
		return oid, nil
	}
	refs, err := store.Refs()
	if err != nil {
		return ginternals.NullOid, err
	}
	for _, ref := range refs {
		if ref.Name == rev || ref.Name == gitpath.RefsHeadsPath+"/"+rev || ref.Name == gitpath.RefsTagsPath+"/"+rev {
			return ref.ID, nil
		}
	}
	return ginternals.NullOid, ginternals.ErrRefNotFound
}

// writeShallowInfo reports the boundary changes, ending with a
// flush-pkt
func writeShallowInfo(pktw *pktline.Writer, res *ShallowResult) error {
	for _, oid := range res.Shallow {
		if _, err := pktw.WriteString("shallow " + oid.String() + "\n"); err != nil {
			return xerrors.Errorf("could not write shallow line: %w", err)
		}
	}
	for _, oid := range res.Unshallow {
		if _, err := pktw.WriteString("unshallow " + oid.String() + "\n"); err != nil {
			return xerrors.Errorf("could not write unshallow line: %w", err)
		}
	}
	if err := pktw.Flush(); err != nil {
		return xerrors.Errorf("could not flush shallow info: %w", err)
	}
	return nil
}

// negotiate runs the have rounds until the client sends "done" (the
// packfile can be sent) or the stream ends (stateless transport,
// more rounds coming in the next request)
func negotiate(ctx context.Context, s *Session, store backend.Store, pktr *pktline.Reader, pktw *pktline.Writer) (done bool, err error) {
	var round []ginternals.Oid

	respond := func(clientDone bool) error {
		res, err := ProcessHaves(ctx, s, store, round, clientDone)
		if err != nil {
			return err
		}
		round = round[:0]

		for _, ack := range res.Acks {
			if _, err := pktw.WriteString(ack.String()); err != nil {
				return xerrors.Errorf("could not write ack: %w", err)
			}
		}
		// Every non-final round ends with a NAK, telling the client
		// to keep going (after the "ready" ack too, per the
		// protocol). The final round only NAKs when nothing was
		// ever found in common
		if res.Nak || !clientDone {
			if _, err := pktw.WriteString("NAK\n"); err != nil {
				return xerrors.Errorf("could not write nak: %w", err)
			}
		}
		return nil
	}

	for {
		pkt, err := pktr.ReadPacket()
		if err == io.EOF {
			// End of a stateless request. Respond to the pending
			// round so the client learns the common ancestors
			// found so far
			if len(round) > 0 {
				if err := respond(false); err != nil {
					return false, err
				}
			}
			return false, nil
		}
		if err != nil {
			return false, xerrors.Errorf("could not read negotiation line: %w", err)
		}
		if pkt.Kind == pktline.KindFlush {
			if err := respond(false); err != nil {
				return false, err
			}
			continue
		}

		line := string(bytes.TrimSuffix(pkt.Payload, []byte{'\n'}))
		verb, arg, _ := strings.Cut(line, " ")
		switch verb {
		case "have":
			oid, err := ginternals.NewOidFromStr(arg)
			if err != nil {
				return false, xerrors.Errorf("invalid have %q: %w", arg, ErrMalformedLine)
			}
			round = append(round, oid)
		case "done":
			return true, respond(true)
		default:
			return false, xerrors.Errorf("unexpected verb %q: %w", verb, ErrMalformedLine)
		}
	}
}

// sendPack generates the packfile and writes it to w, multiplexed
// when the client asked for side-band
func sendPack(ctx context.Context, s *Session, store backend.Store, w io.Writer, opts UploadPackOptions) error {
	sideband := s.Caps.Has(capability.SideBand64k) || s.Caps.Has(capability.SideBand)
	progress := sideband && !s.Caps.Has(capability.NoProgress)

	var mux *Mux
	if sideband {
		mux = NewMux(w)
	}
	// Once side-band is active a failure must reach the client on
	// the error channel, otherwise it only sees a dropped connection
	fail := func(err error) error {
		if mux != nil {
			_ = mux.WriteError(err.Error() + "\n")
			_ = mux.Flush()
		}
		return err
	}

	missing, err := MissingObjects(ctx, store, s.WantList(), s.HaveList(), s.Shallow)
	if err != nil {
		return fail(err)
	}
	if progress {
		_ = mux.WriteProgress(fmt.Sprintf("Enumerating objects: %d, done.\n", len(missing)))
	}

	packables, err := loadPackables(store, missing)
	if err != nil {
		return fail(err)
	}

	packOpts := opts.Pack
	packOpts.UseOfsDelta = s.Caps.Has(capability.OfsDelta)
	if s.Caps.Has(capability.ThinPack) {
		thin, err := loadPackables(store, s.CommonAncestors())
		if err != nil {
			return fail(err)
		}
		packOpts.ThinBases = thin
	}

	res, err := packfile.Generate(ctx, packables, packOpts)
	if err != nil {
		return fail(xerrors.Errorf("could not generate the packfile: %w", err))
	}

	if !sideband {
		if _, err := w.Write(res.Bytes); err != nil {
			return xerrors.Errorf("could not write the packfile: %w", err)
		}
		return nil
	}

	if progress {
		_ = mux.WriteProgress(fmt.Sprintf("Writing objects: %d, done.\n", res.ObjectCount))
	}
	if _, err := mux.Write(res.Bytes); err != nil {
		return xerrors.Errorf("could not write the packfile: %w", err)
	}
	if err := mux.Flush(); err != nil {
		return xerrors.Errorf("could not flush the side-band stream: %w", err)
	}
	return nil
}

// loadPackables materializes the given objects into the shape the
// pack generator consumes. Commits carry their committer time as an
// ordering hint
func loadPackables(store backend.Store, oids []ginternals.Oid) ([]packfile.Packable, error) {
	out := make([]packfile.Packable, 0, len(oids))
	for _, oid := range oids {
		o, err := store.Object(oid)
		if err != nil {
			return nil, xerrors.Errorf("could not load object %s: %w", oid.String(), err)
		}
		p := packfile.Packable{
			ID:   o.ID(),
			Type: o.Type(),
			Data: o.Bytes(),
		}
		if o.Type() == object.TypeCommit {
			if ci, err := o.AsCommit(); err == nil {
				p.Timestamp = ci.Committer().Time
			}
		}
		out = append(out, p)
	}
	return out, nil
}
