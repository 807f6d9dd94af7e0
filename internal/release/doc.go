// Package release decides which upstream release archive to use.
//
// Release versions are opaque, lexically ordered tokens embedded in archive
// filenames; no semantic version parsing happens anywhere.
package release
