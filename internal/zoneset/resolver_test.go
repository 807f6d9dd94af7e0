package zoneset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeRegions lays out region files in a temp dir.
func writeRegions(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}

	return dir
}

// TestResolve_OverrideRegionAliases covers the Cairo/Egypt case: a Link alias
// appears in both the link set and the zone set, exactly once.
func TestResolve_OverrideRegionAliases(t *testing.T) {
	t.Parallel()

	dir := writeRegions(t, map[string]string{
		"africa":   "Zone Africa/Cairo 2:00 Egypt EE%sT\n",
		"backward": "Link Africa/Cairo Egypt\n",
	})

	table, err := Resolve(dir, []string{"africa", "backward"})
	require.NoError(t, err)
	require.Equal(t, []Link{{Target: "Africa/Cairo", Name: "Egypt"}}, table.Links)
	require.Equal(t, []string{"Africa/Cairo", "Egypt"}, table.Zones)
}

// TestResolve_DeduplicatesAcrossRegions keeps one entry per value even when
// a record is declared in more than one region file.
func TestResolve_DeduplicatesAcrossRegions(t *testing.T) {
	t.Parallel()

	dir := writeRegions(t, map[string]string{
		"africa":   "Zone Africa/Cairo 2:00 Egypt EE%sT\nLink Africa/Cairo Egypt\n",
		"backward": "Link Africa/Cairo Egypt\nZone Africa/Cairo 2:00 - EET\n",
	})

	table, err := Resolve(dir, []string{"africa", "backward"})
	require.NoError(t, err)
	require.Len(t, table.Links, 1)
	require.Equal(t, []string{"Africa/Cairo", "Egypt"}, table.Zones)
}

// TestResolve_SkipsNoise ignores comments, blank lines and short records.
func TestResolve_SkipsNoise(t *testing.T) {
	t.Parallel()

	dir := writeRegions(t, map[string]string{
		"europe": strings.Join([]string{
			"# comment line",
			"",
			"Zone",
			"Link Europe/London",
			"Rule UK 1916 only - May 21 2:00s 1:00 BST",
			"Zone Europe/London -0:01:15 - LMT",
			"Link Europe/London GB",
		}, "\n") + "\n",
	})

	table, err := Resolve(dir, []string{"europe"})
	require.NoError(t, err)
	require.Equal(t, []Link{{Target: "Europe/London", Name: "GB"}}, table.Links)
	require.Equal(t, []string{"Europe/London", "GB"}, table.Zones)
}

// TestResolve_SortedOutputIndependentOfInputOrder checks the stable lexical ordering.
func TestResolve_SortedOutputIndependentOfInputOrder(t *testing.T) {
	t.Parallel()

	dir := writeRegions(t, map[string]string{
		"asia": strings.Join([]string{
			"Zone Asia/Tokyo 9:00 - JST",
			"Zone Asia/Baku 4:00 Azer +04/+05",
			"Link Asia/Tokyo Japan",
			"Link Asia/Baku AZ",
		}, "\n") + "\n",
	})

	table, err := Resolve(dir, []string{"asia"})
	require.NoError(t, err)
	require.Equal(t, []Link{
		{Target: "Asia/Baku", Name: "AZ"},
		{Target: "Asia/Tokyo", Name: "Japan"},
	}, table.Links)
	require.Equal(t, []string{"AZ", "Asia/Baku", "Asia/Tokyo", "Japan"}, table.Zones)
}

// TestResolve_MissingRegionFails reports the missing file.
func TestResolve_MissingRegionFails(t *testing.T) {
	t.Parallel()

	_, err := Resolve(t.TempDir(), []string{"africa"})
	require.Error(t, err)
}

// TestWriteSetup renders Link directives first, then zone names, newline-terminated.
func TestWriteSetup(t *testing.T) {
	t.Parallel()

	table := &Table{
		Links: []Link{{Target: "Africa/Cairo", Name: "Egypt"}},
		Zones: []string{"Africa/Cairo", "Egypt"},
	}

	var builder strings.Builder
	require.NoError(t, table.WriteSetup(&builder))
	require.Equal(t, "Link Africa/Cairo Egypt\nAfrica/Cairo\nEgypt\n", builder.String())
}
