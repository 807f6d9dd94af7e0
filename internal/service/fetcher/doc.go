// Package fetcher implements the fetch stage of the pipeline: it lists the
// upstream mirror, selects the release to use per artifact class, downloads
// the archive with its detached signature, verifies it and stages the pair
// into the class input directory.
//
// A class whose staged archive is already current is skipped without a single
// write, so running the fetcher against an up-to-date checkout is a no-op.
package fetcher
