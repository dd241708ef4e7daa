package protocol

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/backend"
	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/capability"
	"github.com/gitdo/gitdo/ginternals/object"
	"github.com/gitdo/gitdo/ginternals/pktline"
)

// AdvertiseRefs writes the repository's references to w in pkt-line
// format, as the first step of a fetch.
//
// The first line carries the server's capabilities after a NUL byte.
// HEAD, when resolvable, is advertised first; annotated tags get an
// extra peeled line ("refs/tags/v1^{}") pointing at the tag's target.
// An empty repository still advertises its capabilities, on a
// placeholder line ("0{40} capabilities^{}").
// The refs are written in the order the store returns them
func AdvertiseRefs(s backend.Store, caps *capability.Set, w io.Writer) error {
	refs, err := s.Refs()
	if err != nil {
		return xerrors.Errorf("could not list the references: %w", err)
	}

	pktw := pktline.NewWriter(w)
	wroteFirst := false

	writeRef := func(oid ginternals.Oid, name string) error {
		line := oid.String() + " " + name
		if !wroteFirst {
			wroteFirst = true
			line += "\x00" + caps.String()
		}
		if _, err := pktw.WriteString(line + "\n"); err != nil {
			return xerrors.Errorf("could not advertise %s: %w", name, err)
		}
		return nil
	}

	if head, err := s.Head(); err == nil {
		if err := writeRef(head.ID, ginternals.Head); err != nil {
			return err
		}
	} else if !xerrors.Is(err, ginternals.ErrRefNotFound) {
		return xerrors.Errorf("could not resolve HEAD: %w", err)
	}

	for _, ref := range refs {
		if err := writeRef(ref.ID, ref.Name); err != nil {
			return err
		}

		// Annotated tags are advertised twice: once as-is, once
		// peeled to their target
		target, err := peel(s, ref.ID)
		if err != nil {
			return xerrors.Errorf("could not peel %s: %w", ref.Name, err)
		}
		if !target.IsZero() {
			if err := writeRef(target, ref.Name+"^{}"); err != nil {
				return err
			}
		}
	}

	if !wroteFirst {
		if err := writeRef(ginternals.NullOid, "capabilities^{}"); err != nil {
			return err
		}
	}

	if err := pktw.Flush(); err != nil {
		return xerrors.Errorf("could not write the flush-pkt: %w", err)
	}
	return nil
}

// peel resolves an annotated tag to its final non-tag target.
// The zero oid is returned when oid isn't a tag
func peel(s backend.Store, oid ginternals.Oid) (ginternals.Oid, error) {
	var out ginternals.Oid
	for {
		o, err := s.Object(oid)
		if err != nil {
			return ginternals.NullOid, err
		}
		if o.Type() != object.TypeTag {
			return out, nil
		}
		tag, err := o.AsTag()
		if err != nil {
			return ginternals.NullOid, err
		}
		oid = tag.Target()
		out = oid
	}
}
