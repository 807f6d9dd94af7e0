package release

import (
	"errors"
	"fmt"
	"strings"
)

// ArchiveSuffix is the extension carried by every upstream release archive.
const ArchiveSuffix = ".tar.gz"

var (
	// ErrReleaseNotFound is returned when a pinned release is absent from the remote listing.
	ErrReleaseNotFound = errors.New("release not found in remote listing")
	// ErrProtocolViolation is returned when the remote listing contains a malformed file name.
	ErrProtocolViolation = errors.New("remote listing is malformed")
)

// ListCandidates filters a flat remote listing down to release archives for
// the given prefix. Any candidate name containing a path separator is treated
// as a protocol violation: the listing is flat by contract and an embedded
// separator means the server response cannot be trusted.
func ListCandidates(listing []string, prefix string) ([]string, error) {
	candidates := make([]string, 0, len(listing))

	for _, name := range listing {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ArchiveSuffix) {
			continue
		}

		if strings.ContainsAny(name, `/\`) {
			return nil, fmt.Errorf("file name %q: %w", name, ErrProtocolViolation)
		}

		candidates = append(candidates, name)
	}

	return candidates, nil
}

// ExpectedFilename composes the archive name for a pinned release version.
// Class prefixes end in the century digits ("tzdata20"), while versions carry
// the full year ("2023a"), so a trailing "20" is trimmed before composing.
func ExpectedFilename(prefix, version string) string {
	prefix = strings.TrimSuffix(prefix, "20")
	return prefix + version + ArchiveSuffix
}

// SelectRelease picks the archive to fetch from the candidate set.
//
// With a pinned version the exact expected filename must be present; the
// latest available release is never substituted. Without a pin the
// lexicographically maximal candidate wins: release filenames are constructed
// so that lexical order equals recency.
func SelectRelease(candidates []string, prefix, pinnedVersion string) (string, error) {
	if pinnedVersion != "" {
		expected := ExpectedFilename(prefix, pinnedVersion)
		for _, name := range candidates {
			if name == expected {
				return expected, nil
			}
		}

		return "", fmt.Errorf("%s: %w", expected, ErrReleaseNotFound)
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("no %s%s files: %w", prefix, ArchiveSuffix, ErrReleaseNotFound)
	}

	latest := candidates[0]
	for _, name := range candidates[1:] {
		if name > latest {
			latest = name
		}
	}

	return latest, nil
}

// IsNewer reports whether the remote archive supersedes the local one under
// plain lexical comparison. An empty local name means nothing is staged yet.
func IsNewer(remoteName, localName string) bool {
	if localName == "" {
		return true
	}

	return remoteName > localName
}

// VersionToken extracts the version token embedded in an archive filename,
// e.g. "tzdata2023a" from "tzdata2023a.tar.gz".
func VersionToken(filename string) string {
	return strings.TrimSuffix(filename, ArchiveSuffix)
}
