package fsstore

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/internal/errutil"
	"github.com/gitdo/gitdo/internal/gitpath"
)

// ErrPackedRefInvalid is returned when the packed-refs file cannot
// be parsed
var ErrPackedRefInvalid = xerrors.New("packed-refs file is invalid")

// symbolicRefPrefix prefixes the target of a symbolic reference on
// disk
const symbolicRefPrefix = "ref: "

// Refs returns all the references of the repository sorted by name.
// The references matched by transfer.hideRefs are left out
func (s *Store) Refs() (refs []ginternals.Reference, err error) {
	all, err := s.allRefs()
	if err != nil {
		return nil, err
	}

	hidden := s.conf.HideRefs()
	names := make([]string, 0, len(all))
	for name := range all {
		if isRefHidden(name, hidden) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	refs = make([]ginternals.Reference, 0, len(names))
	for _, name := range names {
		oid, err := ginternals.NewOidFromStr(all[name])
		if err != nil {
			return nil, xerrors.Errorf("ref %s has an invalid target: %w", name, err)
		}
		refs = append(refs, ginternals.NewReference(name, oid))
	}
	return refs, nil
}

// Head returns the resolved HEAD reference.
// ginternals.ErrRefNotFound is returned on an empty repository
func (s *Store) Head() (ginternals.Reference, error) {
	data, err := afero.ReadFile(s.cfg.FS, filepath.Join(s.cfg.GitDirPath, gitpath.HEADPath))
	if err != nil {
		if os.IsNotExist(err) {
			return ginternals.Reference{}, xerrors.Errorf("no HEAD file: %w", ginternals.ErrRefNotFound)
		}
		return ginternals.Reference{}, xerrors.Errorf("could not read HEAD: %w", err)
	}

	target := strings.TrimSpace(string(data))
	if !strings.HasPrefix(target, symbolicRefPrefix) {
		// detached HEAD, the file contains the oid directly
		oid, err := ginternals.NewOidFromStr(target)
		if err != nil {
			return ginternals.Reference{}, xerrors.Errorf("invalid HEAD content %q: %w", target, err)
		}
		return ginternals.NewReference(ginternals.Head, oid), nil
	}

	name := strings.TrimSpace(strings.TrimPrefix(target, symbolicRefPrefix))
	oid, err := s.refTarget(name)
	if err != nil {
		return ginternals.Reference{}, xerrors.Errorf("HEAD targets %s: %w", name, err)
	}
	return ginternals.NewReference(ginternals.Head, oid), nil
}

// refTarget resolves the name of a reference into an oid, looking at
// the loose refs first and at the packed-refs file after
func (s *Store) refTarget(name string) (ginternals.Oid, error) {
	data, err := afero.ReadFile(s.cfg.FS, s.refSystemPath(name))
	if err == nil {
		return ginternals.NewOidFromStr(strings.TrimSpace(string(data)))
	}
	if !os.IsNotExist(err) {
		return ginternals.NullOid, xerrors.Errorf("could not read reference %s: %w", name, err)
	}

	packed, err := s.parsePackedRefs()
	if err != nil {
		return ginternals.NullOid, xerrors.Errorf("couldn't load packed-refs: %w", err)
	}
	sha, ok := packed[name]
	if !ok {
		return ginternals.NullOid, xerrors.Errorf("ref %q: %w", name, ginternals.ErrRefNotFound)
	}
	return ginternals.NewOidFromStr(sha)
}

// refSystemPath returns the on-disk path of a ref name
// Ex.: On windows refs/heads/master would return refs\heads\master
func (s *Store) refSystemPath(name string) string {
	return filepath.Join(s.cfg.GitDirPath, filepath.FromSlash(name))
}

// allRefs returns a map refName => sha of every reference.
// Loose refs win over the packed-refs entries, matching what git
// does when the packed-refs file is stale
func (s *Store) allRefs() (map[string]string, error) {
	refs, err := s.parsePackedRefs()
	if err != nil {
		return nil, xerrors.Errorf("couldn't load packed-refs: %w", err)
	}

	root := filepath.Join(s.cfg.GitDirPath, gitpath.RefsPath)
	err = afero.Walk(s.cfg.FS, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				// no refs/ directory, the packed-refs entries are
				// all we have
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.cfg.GitDirPath, path)
		if err != nil {
			return xerrors.Errorf("could not get the name of ref at %s: %w", path, err)
		}
		name := filepath.ToSlash(rel)

		data, err := afero.ReadFile(s.cfg.FS, path)
		if err != nil {
			return xerrors.Errorf("could not read reference %s: %w", name, err)
		}
		target := strings.TrimSpace(string(data))
		if strings.HasPrefix(target, symbolicRefPrefix) {
			// symbolic refs other than HEAD are not advertised
			return nil
		}
		refs[name] = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// parsePackedRefs parses the packed-refs file and returns a map
// refName => sha
// https://git-scm.com/docs/git-pack-refs
func (s *Store) parsePackedRefs() (refs map[string]string, err error) {
	refs = map[string]string{}
	f, err := s.cfg.FS.Open(filepath.Join(s.cfg.GitDirPath, gitpath.PackedRefsPath))
	if err != nil {
		// if the file doesn't exist we just return an empty map
		if os.IsNotExist(err) {
			return refs, nil
		}
		return nil, xerrors.Errorf("could not open %s: %w", gitpath.PackedRefsPath, err)
	}
	defer errutil.Close(f, &err)

	sc := bufio.NewScanner(f)
	for i := 1; sc.Scan(); i++ {
		line := sc.Text()
		// we skip empty lines, comments, and annotated tag commits
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		// We expect data to have the format:
		// "oid ref-name"
		parts := strings.Split(line, " ")
		if len(parts) != 2 {
			return nil, xerrors.Errorf("unexpected data line %d: %w", i, ErrPackedRefInvalid)
		}
		refs[parts[1]] = parts[0]
	}
	if sc.Err() != nil {
		return nil, xerrors.Errorf("could not parse %s: %w", gitpath.PackedRefsPath, sc.Err())
	}
	return refs, nil
}

// isRefHidden returns whether the given ref name matches one of the
// transfer.hideRefs prefixes
func isRefHidden(name string, hidden []string) bool {
	for _, prefix := range hidden {
		if name == prefix || strings.HasPrefix(name, prefix+"/") {
			return true
		}
	}
	return false
}
