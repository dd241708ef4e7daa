// Package testhelper contains helpers to simplify tests
package testhelper

import (
	"fmt"
	"testing"
	"time"

	"github.com/gitdo/gitdo/backend/memory"
	"github.com/gitdo/gitdo/ginternals"
	"github.com/gitdo/gitdo/ginternals/object"
)

// Fixture wraps an in-memory store with helpers to build a commit
// graph without the boilerplate. Every helper fails the test on
// error, so the test body stays readable
type Fixture struct {
	t *testing.T

	// Store contains everything the fixture created
	Store *memory.Store

	// clock advances by a minute per commit so the history has
	// distinct, ordered timestamps (deepen-since tests rely on it)
	clock time.Time
}

// NewFixture returns an empty fixture
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{
		t:     t,
		Store: memory.New(),
		clock: time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Blob adds a blob with the given content
func (f *Fixture) Blob(content string) ginternals.Oid {
	f.t.Helper()
	return f.Store.AddObject(object.New(object.TypeBlob, []byte(content)))
}

// Tree adds a tree holding the given files (path to blob content)
func (f *Fixture) Tree(files map[string]string) ginternals.Oid {
	f.t.Helper()
	entries := make([]object.TreeEntry, 0, len(files))
	for path, content := range files {
		entries = append(entries, object.TreeEntry{
			Path: path,
			ID:   f.Blob(content),
			Mode: object.ModeFile,
		})
	}
	return f.Store.AddObject(object.NewTree(entries).ToObject())
}

// Commit adds a commit pointing at the given tree.
// Each call advances the fixture's clock by a minute
func (f *Fixture) Commit(tree ginternals.Oid, parents ...ginternals.Oid) ginternals.Oid {
	f.t.Helper()

	f.clock = f.clock.Add(time.Minute)
	sig := object.Signature{
		Name:  "Test Author",
		Email: "author@domain.tld",
		Time:  f.clock,
	}
	ci := object.NewCommit(tree, sig, &object.CommitOptions{
		Message:   fmt.Sprintf("commit at %s", f.clock.Format(time.RFC3339)),
		ParentsID: parents,
	})
	return f.Store.AddObject(ci.ToObject())
}

// CommitFiles adds a tree holding the given files and a commit
// pointing at it
func (f *Fixture) CommitFiles(files map[string]string, parents ...ginternals.Oid) ginternals.Oid {
	f.t.Helper()
	return f.Commit(f.Tree(files), parents...)
}

// LinearHistory adds n commits, each the parent of the next, every
// one with its own single-file tree. The returned slice goes from
// the root commit to the tip
func (f *Fixture) LinearHistory(n int) []ginternals.Oid {
	f.t.Helper()

	out := make([]ginternals.Oid, 0, n)
	var parents []ginternals.Oid
	for i := 0; i < n; i++ {
		tree := f.Tree(map[string]string{
			"file.txt": fmt.Sprintf("revision %d\n", i),
		})
		oid := f.Commit(tree, parents...)
		out = append(out, oid)
		parents = []ginternals.Oid{oid}
	}
	return out
}

// Tag adds an annotated tag pointing at the given object
func (f *Fixture) Tag(name string, target ginternals.Oid) ginternals.Oid {
	f.t.Helper()

	o, err := f.Store.Object(target)
	if err != nil {
		f.t.Fatalf("could not get tag target %s: %s", target.String(), err)
	}
	tag := object.NewTag(&object.TagParams{
		Target: o,
		Name:   name,
		Tagger: object.Signature{
			Name:  "Test Tagger",
			Email: "tagger@domain.tld",
			Time:  f.clock,
		},
		Message: name + "\n",
	})
	return f.Store.AddObject(tag.ToObject())
}

// Branch points refs/heads/<name> at the given commit
func (f *Fixture) Branch(name string, target ginternals.Oid) {
	f.t.Helper()
	f.Store.SetRef("refs/heads/"+name, target)
}

// TagRef points refs/tags/<name> at the given object
func (f *Fixture) TagRef(name string, target ginternals.Oid) {
	f.t.Helper()
	f.Store.SetRef("refs/tags/"+name, target)
}
