// Package patch applies local patches to an extracted release archive and
// repacks the tree deterministically, but only when at least one patch
// actually applied.
package patch
