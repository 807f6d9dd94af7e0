package zoneset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultRegionOrder is the fixed order in which region files are processed.
// The override regions deliberately come last so their definitions win for
// any name collision in the rule content (and over each other).
var DefaultRegionOrder = []string{
	"africa", "antarctica", "asia", "australasia",
	"etcetera", "europe", "northamerica", "southamerica",
	"backward", "backzone",
}

// Link is an alias mapping a zone name to another zone's rule set.
type Link struct {
	// Target is the zone whose rules the alias resolves to.
	Target string
	// Name is the alias itself.
	Name string
}

// Table is the resolved zone set: deduplicated links and zone names, each in
// stable lexical order regardless of how the source files ordered them.
type Table struct {
	Links []Link
	Zones []string
}

const (
	// SetupFilename is the conventional name of the written setup listing.
	SetupFilename = "setup"

	// setupFileMode is applied to the written setup listing.
	setupFileMode os.FileMode = 0o644

	zoneFieldCount = 2
	linkFieldCount = 3
)

// Resolve parses the region files under dir in the given order and produces
// the canonical zone set. A Link alias is itself an addressable zone name, so
// it lands in both sequences. Blank lines, comments and records with too few
// fields are skipped silently.
func Resolve(dir string, regions []string) (*Table, error) {
	if len(regions) == 0 {
		regions = DefaultRegionOrder
	}

	linkSet := make(map[Link]struct{})
	zoneSet := make(map[string]struct{})

	for _, region := range regions {
		file, err := os.Open(filepath.Clean(filepath.Join(dir, region)))
		if err != nil {
			return nil, fmt.Errorf("open region file: %w", err)
		}

		err = scanRegion(file, linkSet, zoneSet)

		if closeErr := file.Close(); err == nil {
			err = closeErr
		}

		if err != nil {
			return nil, fmt.Errorf("region %s: %w", region, err)
		}
	}

	return buildTable(linkSet, zoneSet), nil
}

// scanRegion feeds a single region file's Zone and Link records into the sets.
func scanRegion(r io.Reader, linkSet map[Link]struct{}, zoneSet map[string]struct{}) error {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "Zone":
			if len(fields) < zoneFieldCount {
				continue
			}

			zoneSet[fields[1]] = struct{}{}
		case "Link":
			if len(fields) < linkFieldCount {
				continue
			}

			linkSet[Link{Target: fields[1], Name: fields[2]}] = struct{}{}
			zoneSet[fields[2]] = struct{}{}
		}
	}

	return scanner.Err()
}

// buildTable renders the sets as lexically sorted sequences.
func buildTable(linkSet map[Link]struct{}, zoneSet map[string]struct{}) *Table {
	table := &Table{
		Links: make([]Link, 0, len(linkSet)),
		Zones: make([]string, 0, len(zoneSet)),
	}

	for link := range linkSet {
		table.Links = append(table.Links, link)
	}

	sort.Slice(table.Links, func(i, j int) bool {
		if table.Links[i].Target != table.Links[j].Target {
			return table.Links[i].Target < table.Links[j].Target
		}

		return table.Links[i].Name < table.Links[j].Name
	})

	for zone := range zoneSet {
		table.Zones = append(table.Zones, zone)
	}

	sort.Strings(table.Zones)

	return table
}

// WriteSetup emits the setup listing consumed by the zone compactor: all
// Link directives first, then all zone names, one per line.
func (t *Table) WriteSetup(w io.Writer) error {
	for _, link := range t.Links {
		if _, err := fmt.Fprintf(w, "Link %s %s\n", link.Target, link.Name); err != nil {
			return err
		}
	}

	for _, zone := range t.Zones {
		if _, err := fmt.Fprintf(w, "%s\n", zone); err != nil {
			return err
		}
	}

	return nil
}

// WriteSetupFile writes the setup listing to the given path.
func (t *Table) WriteSetupFile(path string) error {
	var builder strings.Builder
	if err := t.WriteSetup(&builder); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Clean(path), []byte(builder.String()), setupFileMode); err != nil {
		return fmt.Errorf("write setup listing: %w", err)
	}

	return nil
}
