// Package archive extracts release archives and rebuilds them reproducibly.
//
// The builder guarantees byte-identical output for byte-identical input
// trees, independent of wall-clock time or the building environment, so a
// rebuilt archive can be content-compared against a previous one.
package archive
