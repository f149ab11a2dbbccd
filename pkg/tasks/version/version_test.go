package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/resolver/pkg/tasks/version"
)

func TestParseExact(t *testing.T) {
	c, err := version.Parse("=1.2.3")
	require.NoError(t, err)

	ok, err := c.Matches("1.2.3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Matches("1.2.4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseCaret(t *testing.T) {
	c, err := version.Parse("^1.2.0")
	require.NoError(t, err)

	for _, tc := range []struct {
		v     string
		match bool
	}{
		{"1.2.0", true},
		{"1.2.4", true},
		{"1.3.0", true},
		{"2.0.0", false},
		{"1.1.9", false},
	} {
		ok, err := c.Matches(tc.v)
		require.NoError(t, err)
		assert.Equalf(t, tc.match, ok, "version %s", tc.v)
	}
}

func TestParseBareVersionIsExactPin(t *testing.T) {
	c, err := version.Parse("1.2.3")
	require.NoError(t, err)

	ok, err := c.Matches("1.2.3")
	require.NoError(t, err)
	assert.True(t, ok, "bare version should match itself exactly")

	ok, err = c.Matches("1.2.4")
	require.NoError(t, err)
	assert.False(t, ok, "bare version is an exact pin, not a caret range — must not match a patch bump")

	ok, err = c.Matches("1.3.0")
	require.NoError(t, err)
	assert.False(t, ok, "bare version is an exact pin, not a caret range — must not match a minor bump")
}

func TestParseTilde(t *testing.T) {
	c, err := version.Parse("~1.2.0")
	require.NoError(t, err)

	ok, err := c.Matches("1.2.9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Matches("1.3.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseWildcard(t *testing.T) {
	c, err := version.Parse("*")
	require.NoError(t, err)

	ok, err := c.Matches("9.9.9")
	require.NoError(t, err)
	assert.True(t, ok, "wildcard matches every valid semver")
}

func TestParseLatest(t *testing.T) {
	c, err := version.Parse("latest")
	require.NoError(t, err)
	assert.True(t, c.IsLatest())

	ok, err := c.Matches("0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseComparatorChain(t *testing.T) {
	c, err := version.Parse(">=1.0.0, <2.0.0")
	require.NoError(t, err)

	ok, err := c.Matches("1.9.9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Matches("2.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseInvalidConstraint(t *testing.T) {
	_, err := version.Parse("")
	require.Error(t, err)

	_, err = version.Parse("not-a-version")
	require.Error(t, err)
}

func TestFindBestCaretChoosesMax(t *testing.T) {
	c, err := version.Parse("^1.0.0")
	require.NoError(t, err)

	best, ok := version.FindBest(c, []string{"1.0.0", "1.5.0", "2.0.0"})
	require.True(t, ok)
	assert.Equal(t, "1.5.0", best, "highest version within ^1.0.0 is 1.5.0, 2.0.0 is excluded")
}

func TestFindBestLatest(t *testing.T) {
	c, err := version.Parse("latest")
	require.NoError(t, err)

	best, ok := version.FindBest(c, []string{"1.0.0", "2.5.0", "2.0.0"})
	require.True(t, ok)
	assert.Equal(t, "2.5.0", best)
}

func TestFindBestEmptyCandidates(t *testing.T) {
	c, err := version.Parse("^1.0.0")
	require.NoError(t, err)

	_, ok := version.FindBest(c, nil)
	assert.False(t, ok, "no candidates should never panic, just report not-found")
}

func TestFindBestNoSatisfying(t *testing.T) {
	c, err := version.Parse("^3.0.0")
	require.NoError(t, err)

	_, ok := version.FindBest(c, []string{"1.0.0", "2.0.0"})
	assert.False(t, ok)
}

func TestVersionZeroZeroZeroIsLegal(t *testing.T) {
	c, err := version.Parse("^0.0.0")
	require.NoError(t, err)

	ok, err := c.Matches("0.0.0")
	require.NoError(t, err)
	assert.True(t, ok)
}
