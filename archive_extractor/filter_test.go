package archive_extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchFilter(t *testing.T) {
	cases := []struct {
		pattern string
		mode    MatchMode
		path    string
		exclude bool
	}{
		{`^dir/y`, MatchRegexp, "dir/y.txt", true},
		{`^dir/y`, MatchRegexp, "dir/x.txt", false},
		{"dir/", MatchPrefix, "dir/x.txt", true},
		{"dir/", MatchPrefix, "other/x.txt", false},
		{".txt", MatchSuffix, "dir/x.txt", true},
		{".txt", MatchSuffix, "dir/x.bin", false},
		{"ir/x", MatchSubstr, "dir/x.txt", true},
		{"dir/*.txt", MatchGlob, "dir/x.txt", true},
		{"dir/*.txt", MatchGlob, "dir/sub/x.txt", false},
		{"dir", MatchGlob, "dir/", true},
	}
	for _, tc := range cases {
		f, err := NewMatchFilter(tc.pattern, tc.mode)
		require.NoError(t, err)
		assert.Equal(t, tc.exclude, f.Exclude(tc.path), "%s %s %s", tc.mode, tc.pattern, tc.path)
	}
}

func TestMatchFilterErrors(t *testing.T) {
	_, err := NewMatchFilter("(", MatchRegexp)
	assert.Error(t, err)
	_, err = NewMatchFilter("[", MatchGlob)
	assert.Error(t, err)
	_, err = NewMatchFilter("x", MatchMode("fuzzy"))
	var mmErr *ErrMatchMode
	assert.ErrorAs(t, err, &mmErr)
	assert.Panics(t, func() { MustRegexpFilter("(") })
}

func TestAnyOf(t *testing.T) {
	f := AnyOf(nil, MustRegexpFilter(`\.log$`), FilterFunc(func(p string) bool { return p == "skip" }))
	assert.True(t, f.Exclude("a.log"))
	assert.True(t, f.Exclude("skip"))
	assert.False(t, f.Exclude("keep.txt"))
	assert.False(t, excluded(nil, "anything"))
}
