package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/oshokin/tzdata-packager/internal/archive"
	"github.com/oshokin/tzdata-packager/internal/logger"
)

// ErrPatchFailed is returned when a specific patch fails to apply. The
// wrapping error names the patch; operator intervention is required, so the
// run aborts with no retry.
var ErrPatchFailed = errors.New("patch failed to apply")

// patchNamePattern encodes the patch identifier convention:
// <numeric-priority>-<targetRelativePath>.patch.
var patchNamePattern = regexp.MustCompile(`^(\d+)-(.+)\.patch$`)

// Patch is a single patch descriptor discovered on disk.
type Patch struct {
	// Priority orders application; lower numbers apply first.
	Priority int
	// Target is the file path the patch applies to, relative to the tree root.
	Target string
	// Path is the location of the patch file itself.
	Path string
}

// Applier applies one patch file to one target file.
type Applier interface {
	Apply(ctx context.Context, targetFile, patchFile string) error
}

// Result describes the outcome of a patch-and-repack run.
type Result struct {
	// ArchivePath is the archive to feed downstream. When no patch applied it
	// is the original input archive, byte-for-byte.
	ArchivePath string
	// TreeDir is the extracted (and possibly patched) working tree.
	TreeDir string
	// Applied is the number of patches that were applied.
	Applied int
}

// Engine extracts a release archive, applies local patches in priority order
// and repacks the tree deterministically when anything changed.
type Engine struct {
	applier Applier
}

// NewEngine returns an engine using the provided applier.
func NewEngine(applier Applier) *Engine {
	return &Engine{applier: applier}
}

// Discover lists the patches in dir ordered by ascending numeric priority,
// ties broken by filename for stability. Files not matching the naming
// convention are ignored.
func Discover(dir string) ([]Patch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read patches directory: %w", err)
	}

	patches := make([]Patch, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		match := patchNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		priority, err := strconv.Atoi(match[1])
		if err != nil {
			// Unreachable for \d+ short of overflow; treat as malformed and skip.
			continue
		}

		patches = append(patches, Patch{
			Priority: priority,
			Target:   match[2],
			Path:     filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(patches, func(i, j int) bool {
		if patches[i].Priority != patches[j].Priority {
			return patches[i].Priority < patches[j].Priority
		}

		return patches[i].Path < patches[j].Path
	})

	return patches, nil
}

// ApplyPatches applies the patch set strictly in order against workTree.
// The first failure aborts with ErrPatchFailed; patches already applied are
// not rolled back, since the working tree is discarded wholesale on failure.
func (e *Engine) ApplyPatches(ctx context.Context, patches []Patch, workTree string) (int, error) {
	applied := 0

	for _, p := range patches {
		logger.InfoKV(ctx, "Applying patch", "patch", filepath.Base(p.Path), "target", p.Target)

		target := filepath.Join(workTree, filepath.FromSlash(p.Target))
		if err := e.applier.Apply(ctx, target, p.Path); err != nil {
			return applied, fmt.Errorf("%s: %v: %w", filepath.Base(p.Path), err, ErrPatchFailed)
		}

		applied++
	}

	return applied, nil
}

// Run extracts archivePath into workDir, applies the patches found in
// patchesDir and repacks. When no patch applied, the original archive is
// passed through unchanged so a rebuild without source changes stays a no-op.
func (e *Engine) Run(ctx context.Context, archivePath, patchesDir, workDir string) (*Result, error) {
	treeDir := filepath.Join(workDir, "extracted")

	logger.InfoKV(ctx, "Extracting release archive", "archive", archivePath)

	if err := archive.Extract(archivePath, treeDir); err != nil {
		return nil, err
	}

	patches, err := Discover(patchesDir)
	if err != nil {
		return nil, err
	}

	applied, err := e.ApplyPatches(ctx, patches, treeDir)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ArchivePath: archivePath,
		TreeDir:     treeDir,
		Applied:     applied,
	}

	if applied == 0 {
		logger.Info(ctx, "No patches applied, passing the original archive through")
		return result, nil
	}

	repacked := filepath.Join(workDir, filepath.Base(archivePath))

	logger.InfoKV(ctx, "Repacking patched tree", "patches_applied", applied)

	if err = archive.BuildReproducible(treeDir, repacked); err != nil {
		return nil, err
	}

	result.ArchivePath = repacked

	return result, nil
}
