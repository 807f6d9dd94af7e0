package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	errUnsafeEntryPath = errors.New("archive entry escapes destination directory")
	errUnsupportedType = errors.New("unsupported archive entry type")
)

const (
	// defaultDirMode is applied to directories created while extracting.
	defaultDirMode os.FileMode = 0o755

	// reproducibleDirMode is the fixed permission emitted for directory entries.
	reproducibleDirMode int64 = 0o755
)

// Extract unpacks a gzip-compressed tar archive into destDir, creating it if
// needed. Entry names are confined to destDir; an entry that would escape it
// fails the extraction.
func Extract(archivePath, destDir string) error {
	file, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("read archive %s: %w", archivePath, err)
	}

	defer func() {
		_ = gzReader.Close()
	}()

	if err = os.MkdirAll(destDir, defaultDirMode); err != nil {
		return err
	}

	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read archive %s: %w", archivePath, err)
		}

		if err = extractEntry(tarReader, header, destDir); err != nil {
			return fmt.Errorf("extract %s: %w", header.Name, err)
		}
	}
}

// extractEntry writes a single tar entry under destDir.
func extractEntry(r io.Reader, header *tar.Header, destDir string) error {
	target, err := safeJoin(destDir, header.Name)
	if err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, defaultDirMode)
	case tar.TypeSymlink:
		if filepath.IsAbs(header.Linkname) {
			return fmt.Errorf("absolute symlink %q: %w", header.Linkname, errUnsafeEntryPath)
		}

		return os.Symlink(header.Linkname, target)
	case tar.TypeReg:
		if err = os.MkdirAll(filepath.Dir(target), defaultDirMode); err != nil {
			return err
		}

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, header.FileInfo().Mode().Perm())
		if err != nil {
			return err
		}

		if _, err = io.Copy(out, r); err != nil {
			_ = out.Close()

			return err
		}

		return out.Close()
	default:
		return fmt.Errorf("entry type %d: %w", header.Typeflag, errUnsupportedType)
	}
}

// safeJoin joins name under dir and rejects traversal outside of dir.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%q: %w", name, errUnsafeEntryPath)
	}

	return target, nil
}

// BuildReproducible packs srcDir into a gzip-compressed tar archive at
// destPath. Two builds over bit-identical trees produce bit-identical
// archives: entries are emitted in ascending name order, every header is
// normalized to the epoch timestamp, numeric owner 0:0 and a fixed permission
// policy, and the gzip stream carries no name or timestamp.
//
// The archive is written to a temporary name in the destination directory and
// renamed into place, so an interrupted build never leaves a torn file.
func BuildReproducible(srcDir, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), defaultDirMode); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return err
	}

	if err = writeReproducible(tmp, srcDir); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("pack %s: %w", srcDir, err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), destPath)
}

// writeReproducible streams the normalized archive bytes to w.
func writeReproducible(w io.Writer, srcDir string) error {
	entries, err := collectEntries(srcDir)
	if err != nil {
		return err
	}

	gzWriter, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}

	tarWriter := tar.NewWriter(gzWriter)

	for _, entry := range entries {
		if err = addEntry(tarWriter, srcDir, entry); err != nil {
			return fmt.Errorf("add %s: %w", entry, err)
		}
	}

	if err = tarWriter.Close(); err != nil {
		return err
	}

	return gzWriter.Close()
}

// collectEntries lists every path under root relative to it, slash-separated
// and sorted ascending. The sort fixes the archive entry order.
func collectEntries(root string) ([]string, error) {
	var entries []string

	err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		entries = append(entries, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(entries)

	return entries, nil
}

// addEntry writes one normalized entry to the tar stream.
func addEntry(tw *tar.Writer, root, rel string) error {
	path := filepath.Join(root, filepath.FromSlash(rel))

	info, err := os.Lstat(path)
	if err != nil {
		return err
	}

	var linkTarget string
	if info.Mode()&os.ModeSymlink != 0 {
		if linkTarget, err = os.Readlink(path); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, linkTarget)
	if err != nil {
		return err
	}

	header.Name = rel
	if info.IsDir() {
		header.Name += "/"
	}

	normalizeHeader(header, info.Mode())

	if err = tw.WriteHeader(header); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}

	_, err = io.Copy(tw, file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	return err
}

// normalizeHeader strips everything environment-dependent from a tar header.
// Timestamps collapse to the epoch, ownership to numeric 0:0, and permissions
// to the fixed policy so rebuilds are byte-identical.
func normalizeHeader(header *tar.Header, mode os.FileMode) {
	header.ModTime = time.Unix(0, 0).UTC()
	header.AccessTime = time.Time{}
	header.ChangeTime = time.Time{}
	header.Uid = 0
	header.Gid = 0
	header.Uname = ""
	header.Gname = ""
	header.Format = tar.FormatPAX

	if mode.IsDir() {
		header.Mode = reproducibleDirMode
		return
	}

	header.Mode = reproduciblePerm(mode)
}

// reproduciblePerm mirrors the owner permission bits onto group and other and
// then clears their write bits (tar's mode=go+u,go-w).
func reproduciblePerm(mode os.FileMode) int64 {
	owner := int64(mode.Perm() & 0o700)
	perm := owner | owner>>3 | owner>>6
	perm &^= 0o022

	return perm
}
