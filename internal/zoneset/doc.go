// Package zoneset resolves raw region rule files into the canonical,
// deduplicated table of zones and aliases handed to the zone compactor.
package zoneset
