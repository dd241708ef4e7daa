package ginternals_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gitdo/gitdo/ginternals"
)

func TestNewReference(t *testing.T) {
	t.Parallel()

	oid := ginternals.NewOidFromContent([]byte("commit"))
	ref := ginternals.NewReference("refs/heads/master", oid)
	assert.Equal(t, "refs/heads/master", ref.Name)
	assert.Equal(t, oid, ref.ID)
}

func TestIsRefNameValid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		valid bool
	}{
		{"refs/heads/master", true},
		{"refs/tags/v1.0.0", true},
		{"HEAD", true},
		{"", false},
		{"/refs/heads/master", false},
		{"refs/heads/master/", false},
		{"refs/heads/master.", false},
		{"refs/heads/mas..ter", false},
		{"refs/heads/mas ter", false},
		{"refs/heads/master.lock", false},
		{"refs/heads/ma!ster", false},
		{"refs/heads/hidden/.branch", false},
		{"refs//heads", false},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.valid, ginternals.IsRefNameValid(tc.name), "name %q", tc.name)
		})
	}
}
