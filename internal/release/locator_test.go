package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestListCandidates_FiltersPrefixAndSuffix keeps only matching archive names.
func TestListCandidates_FiltersPrefixAndSuffix(t *testing.T) {
	t.Parallel()

	listing := []string{
		"tzdata2023a.tar.gz",
		"tzdata2023a.tar.gz.asc",
		"tzcode2023a.tar.gz",
		"tzdata2023b.tar.gz",
		"README",
	}

	got, err := ListCandidates(listing, "tzdata20")
	require.NoError(t, err)
	require.Equal(t, []string{"tzdata2023a.tar.gz", "tzdata2023b.tar.gz"}, got)
}

// TestListCandidates_RejectsPathSeparators treats separators in names as a protocol violation.
func TestListCandidates_RejectsPathSeparators(t *testing.T) {
	t.Parallel()

	_, err := ListCandidates([]string{"tzdata20/evil.tar.gz"}, "tzdata20")
	require.ErrorIs(t, err, ErrProtocolViolation)

	_, err = ListCandidates([]string{`tzdata20\evil.tar.gz`}, "tzdata20")
	require.ErrorIs(t, err, ErrProtocolViolation)
}

// TestSelectRelease_LatestWinsLexically picks the lexically maximal candidate without a pin.
func TestSelectRelease_LatestWinsLexically(t *testing.T) {
	t.Parallel()

	got, err := SelectRelease([]string{"tzdata2023a.tar.gz", "tzdata2023b.tar.gz"}, "tzdata20", "")
	require.NoError(t, err)
	require.Equal(t, "tzdata2023b.tar.gz", got)

	// Input order must not matter.
	got, err = SelectRelease([]string{"tzdata2023b.tar.gz", "tzdata2023a.tar.gz"}, "tzdata20", "")
	require.NoError(t, err)
	require.Equal(t, "tzdata2023b.tar.gz", got)
}

// TestSelectRelease_PinnedExactOrNotFound never substitutes the latest for a pin.
func TestSelectRelease_PinnedExactOrNotFound(t *testing.T) {
	t.Parallel()

	candidates := []string{"tzdata2023a.tar.gz", "tzdata2023c.tar.gz", "tzdata2023d.tar.gz"}

	got, err := SelectRelease(candidates, "tzdata20", "2023c")
	require.NoError(t, err)
	require.Equal(t, "tzdata2023c.tar.gz", got)

	_, err = SelectRelease([]string{"tzdata2023a.tar.gz", "tzdata2023d.tar.gz"}, "tzdata20", "2023c")
	require.ErrorIs(t, err, ErrReleaseNotFound)
	require.ErrorContains(t, err, "tzdata2023c.tar.gz")
}

// TestSelectRelease_EmptyCandidates fails when nothing matches the prefix.
func TestSelectRelease_EmptyCandidates(t *testing.T) {
	t.Parallel()

	_, err := SelectRelease(nil, "tzdata20", "")
	require.ErrorIs(t, err, ErrReleaseNotFound)
}

// TestExpectedFilename_TrimsCenturyDigits handles the "tzdata20" prefix convention.
func TestExpectedFilename_TrimsCenturyDigits(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tzdata2023c.tar.gz", ExpectedFilename("tzdata20", "2023c"))
	require.Equal(t, "tzcode2023c.tar.gz", ExpectedFilename("tzcode20", "2023c"))
	require.Equal(t, "tzdata2023c.tar.gz", ExpectedFilename("tzdata", "2023c"))
}

// TestIsNewer_LexicalComparison covers the plain string ordering contract.
func TestIsNewer_LexicalComparison(t *testing.T) {
	t.Parallel()

	require.True(t, IsNewer("tzdata2023b.tar.gz", "tzdata2023a.tar.gz"))
	require.False(t, IsNewer("tzdata2023a.tar.gz", "tzdata2023a.tar.gz"))
	require.False(t, IsNewer("tzdata2022z.tar.gz", "tzdata2023a.tar.gz"))
	require.True(t, IsNewer("tzdata2023a.tar.gz", ""))
}

// TestVersionToken strips the archive suffix only.
func TestVersionToken(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tzdata2023a", VersionToken("tzdata2023a.tar.gz"))
}
