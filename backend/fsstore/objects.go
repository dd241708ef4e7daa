package fsstore

import (
	"compress/zlib"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/object"
	"github.com/gitdo/gitdo/internal/errutil"
	"github.com/gitdo/gitdo/internal/readutil"
	"golang.org/x/xerrors"
)

// looseObjectPath returns the absolute path of an object
// .git/objects/first_2_chars_of_sha/remaining_chars_of_sha
// Ex. path of fcfe68a0e44e04bd7fd564fc0b75f1ae457e18b3 is:
// .git/objects/fc/fe68a0e44e04bd7fd564fc0b75f1ae457e18b3
func (s *Store) looseObjectPath(sha string) string {
	return filepath.Join(s.cfg.ObjectDirPath, sha[:2], sha[2:])
}

// HasObject returns whether an object exists in the odb
func (s *Store) HasObject(oid ginternals.Oid) (bool, error) {
	if _, ok := s.objectCache.Get(oid); ok {
		return true, nil
	}

	_, err := s.cfg.FS.Stat(s.looseObjectPath(oid.String()))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, xerrors.Errorf("could not check object %s: %w", oid.String(), err)
}

// Object returns the object that has given oid.
// ginternals.ErrObjectNotFound is returned if the object doesn't
// exist
func (s *Store) Object(oid ginternals.Oid) (*object.Object, error) {
	key := oid.Bytes()
	s.objectMu.Lock(key)
	defer s.objectMu.Unlock(key)

	if buff, ok := s.objectCache.Get(oid); ok {
		return parseLooseObject(oid, buff)
	}

	buff, err := s.readLooseObject(oid)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf("object %s: %w", oid.String(), ginternals.ErrObjectNotFound)
		}
		return nil, err
	}
	s.objectCache.Add(oid, buff)
	return parseLooseObject(oid, buff)
}

// readLooseObject reads and decompresses the loose file of the given
// object
func (s *Store) readLooseObject(oid ginternals.Oid) (buff []byte, err error) {
	p := s.looseObjectPath(oid.String())
	f, err := s.cfg.FS.Open(p)
	if err != nil {
		return nil, err
	}
	defer errutil.Close(f, &err)

	// Objects are zlib encoded
	zlibReader, err := zlib.NewReader(f)
	if err != nil {
		return nil, xerrors.Errorf("could not decompress object %s at path %s: %w", oid.String(), p, err)
	}
	defer errutil.Close(zlibReader, &err)

	// We directly read the entire file since most of it is the
	// content we need
	buff, err = io.ReadAll(zlibReader)
	if err != nil {
		return nil, xerrors.Errorf("could not read object %s at path %s: %w", oid.String(), p, err)
	}
	return buff, nil
}

// parseLooseObject parses a decompressed loose file.
// The format of an object is an ascii encoded type, an ascii encoded
// space, then an ascii encoded length of the object, then a null
// character, then the body of the object
func parseLooseObject(oid ginternals.Oid, buff []byte) (*object.Object, error) {
	// we keep track of where we're at in the buffer
	pointerPos := 0

	// the type of the object starts at offset 0 and ends at the
	// first space character
	typ := readutil.ReadTo(buff, ' ')
	if typ == nil {
		return nil, xerrors.Errorf("could not find object type for %s", oid.String())
	}
	oType, err := object.NewTypeFromString(string(typ))
	if err != nil {
		return nil, xerrors.Errorf("unsupported type %s for object %s: %w", string(typ), oid.String(), err)
	}
	pointerPos += len(typ)
	pointerPos++ // one more for the space

	// The size of the object starts after the space and ends at a
	// NULL char
	size := readutil.ReadTo(buff[pointerPos:], 0)
	if size == nil {
		return nil, xerrors.Errorf("could not find object size for %s", oid.String())
	}
	oSize, err := strconv.Atoi(string(size))
	if err != nil {
		return nil, xerrors.Errorf("invalid size %s for object %s: %w", size, oid.String(), err)
	}
	pointerPos += len(size)
	pointerPos++ // one more for the NULL char

	oContent := buff[pointerPos:]
	if len(oContent) != oSize {
		return nil, xerrors.Errorf("object %s marked as size %d, but has %d", oid.String(), oSize, len(oContent))
	}
	return object.NewWithID(oid, oType, oContent), nil
}
