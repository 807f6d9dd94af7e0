package builder

import (
	"bytes"
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/tzdata-packager/internal/config"
	"github.com/oshokin/tzdata-packager/internal/logger"
	"github.com/oshokin/tzdata-packager/internal/patch"
	"github.com/oshokin/tzdata-packager/internal/release"
	"github.com/oshokin/tzdata-packager/internal/service/runlock"
	"github.com/oshokin/tzdata-packager/internal/toolchain"
	"github.com/oshokin/tzdata-packager/internal/zoneset"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// OutputManifestFilename records the published release version and file
	// checksums. It is written last, after every artifact has landed.
	OutputManifestFilename = "tzdata-output-version.yaml"

	// DefaultFileMode is used when producing artifacts for distribution.
	DefaultFileMode os.FileMode = 0o644

	// DefaultChecksumFunction is used to calculate published file hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512
)

var (
	errNoDataArchive    = errors.New("no data archive staged, run tzdata-fetcher first")
	errAmbiguousArchive = errors.New("more than one data archive staged")
	errHashUnavailable  = errors.New("hash function unavailable")
)

// Options contains inputs for the builder entry point.
type Options struct {
	// ConfigPath is an optional path to the pipeline settings (defaults to settings.yaml).
	ConfigPath string
}

// Manifest describes a published data set.
type Manifest struct {
	// Version is the release version token the data was built from.
	Version string `yaml:"version"`
	// Files maps published filenames to their base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// runner holds the state for a single build execution.
// It is unexported; callers should use Run, which encapsulates setup and cleanup.
type runner struct {
	cfg       *config.Config
	engine    *patch.Engine
	compiler  toolchain.ZoneCompiler
	compactor toolchain.ZoneCompactor
	tempDir   string
}

// Run executes the build stage: patch the staged data archive, compile it,
// resolve the zone set, compact it and publish the result atomically. All
// intermediate work happens in a run-scoped temp dir; the publish directory
// is touched only after every preceding step has succeeded.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tzdata-builder")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	unlock, err := runlock.Acquire(ctx, ".")
	if err != nil {
		return err
	}

	defer unlock()

	r, err := newRunner(cfg)
	if err != nil {
		return fmt.Errorf("initialize builder: %w", err)
	}

	defer r.cleanup(ctx)

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Build stage failed", "error", err)
		return err
	}

	logger.Info(ctx, "Builder completed successfully")

	return nil
}

// newRunner prepares the run-scoped working area and the external tools.
func newRunner(cfg *config.Config) (*runner, error) {
	tempDir, err := os.MkdirTemp("", "tzdata-builder-")
	if err != nil {
		return nil, err
	}

	return &runner{
		cfg:       cfg,
		engine:    patch.NewEngine(&toolchain.PatchTool{Timeout: cfg.ToolTimeout}),
		compiler:  &toolchain.ZicCompiler{Command: cfg.ZicCommand, Timeout: cfg.ToolTimeout},
		compactor: &toolchain.ExecZoneCompactor{Command: cfg.CompactorCommand, Timeout: cfg.ToolTimeout},
		tempDir:   tempDir,
	}, nil
}

// Run sequences the build stages.
func (r *runner) Run(ctx context.Context) error {
	archiveName, err := findDataArchive(r.cfg.DataInputDir)
	if err != nil {
		return err
	}

	version := release.VersionToken(archiveName)
	ctx = logger.WithKV(ctx, "version", version)

	result, err := r.engine.Run(ctx,
		filepath.Join(r.cfg.DataInputDir, archiveName), r.cfg.PatchesDir, r.tempDir)
	if err != nil {
		return fmt.Errorf("patch stage: %w", err)
	}

	logger.InfoKV(ctx, "Using data archive",
		"archive", result.ArchivePath, "patches_applied", result.Applied)

	regions := r.cfg.Regions
	if len(regions) == 0 {
		regions = zoneset.DefaultRegionOrder
	}

	compiledDir, err := r.compileZones(ctx, result.TreeDir, regions)
	if err != nil {
		return fmt.Errorf("compile stage: %w", err)
	}

	setupPath, err := r.resolveZoneSet(ctx, result.TreeDir, regions)
	if err != nil {
		return fmt.Errorf("resolve stage: %w", err)
	}

	stagingDir := filepath.Join(r.tempDir, "out")
	if err = os.MkdirAll(stagingDir, 0o755); err != nil {
		return err
	}

	logger.Info(ctx, "Calling the zone compactor")

	zoneTabPath := filepath.Join(result.TreeDir, "zone.tab")
	if err = r.compactor.Compact(ctx, setupPath, compiledDir, zoneTabPath, stagingDir, version); err != nil {
		return fmt.Errorf("compact stage: %w", err)
	}

	if err = r.publish(ctx, stagingDir, version); err != nil {
		return fmt.Errorf("publish stage: %w", err)
	}

	return nil
}

// compileZones runs the external rule compiler over the region files in their
// override order. The compiler sees the same ordered list as the resolver so
// that later regions' rule content wins for colliding names.
func (r *runner) compileZones(ctx context.Context, treeDir string, regions []string) (string, error) {
	compiledDir := filepath.Join(r.tempDir, "compiled")
	if err := os.MkdirAll(compiledDir, 0o755); err != nil {
		return "", err
	}

	regionPaths := make([]string, 0, len(regions))
	for _, region := range regions {
		regionPaths = append(regionPaths, filepath.Join(treeDir, region))
	}

	logger.Info(ctx, "Calling the zone rule compiler")

	if err := r.compiler.Compile(ctx, compiledDir, regionPaths); err != nil {
		return "", err
	}

	return compiledDir, nil
}

// resolveZoneSet produces the setup listing for the compactor.
func (r *runner) resolveZoneSet(ctx context.Context, treeDir string, regions []string) (string, error) {
	table, err := zoneset.Resolve(treeDir, regions)
	if err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Resolved zone set",
		"zones", len(table.Zones), "links", len(table.Links))

	setupPath := filepath.Join(r.tempDir, zoneset.SetupFilename)
	if err = table.WriteSetupFile(setupPath); err != nil {
		return "", err
	}

	return setupPath, nil
}

// publish replaces the published artifacts with the staged ones. Every file
// lands through a checksum-verified write-to-temporary-then-rename, and the
// output manifest goes last so a reader never sees a manifest describing
// files that are not there yet.
func (r *runner) publish(ctx context.Context, stagingDir, version string) error {
	files, err := listFiles(stagingDir)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(r.cfg.PublishDir, 0o755); err != nil {
		return err
	}

	manifest := &Manifest{
		Version: version,
		Files:   make(map[string]string, len(files)),
	}

	for _, name := range files {
		checksum, err := fileChecksum(filepath.Join(stagingDir, name))
		if err != nil {
			return err
		}

		if err = r.publishFile(stagingDir, name, checksum); err != nil {
			return err
		}

		manifest.Files[name] = base64.StdEncoding.EncodeToString(checksum)

		logger.InfoKV(ctx, "Published file", "file", name)
	}

	return r.saveManifest(manifest)
}

// publishFile applies one staged file onto its published location.
func (r *runner) publishFile(stagingDir, name string, checksum []byte) error {
	data, err := os.ReadFile(filepath.Clean(filepath.Join(stagingDir, name)))
	if err != nil {
		return err
	}

	target := filepath.Join(r.cfg.PublishDir, name)
	if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	if _, err = os.Stat(target); err != nil && errors.Is(err, os.ErrNotExist) {
		if _, err = os.Create(filepath.Clean(target)); err != nil {
			return err
		}
	}

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: DefaultFileMode,
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}

	oldName := target + ".old"
	if _, err = os.Stat(oldName); err == nil {
		_ = os.Remove(oldName)
	}

	return nil
}

// saveManifest writes the output manifest via a temporary name and a rename.
func (r *runner) saveManifest(manifest *Manifest) error {
	contents, err := yaml.Marshal(manifest)
	if err != nil {
		return err
	}

	target := filepath.Join(r.cfg.PublishDir, OutputManifestFilename)

	tmp, err := os.CreateTemp(r.cfg.PublishDir, OutputManifestFilename+".tmp-*")
	if err != nil {
		return err
	}

	if _, err = tmp.Write(contents); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), target)
}

// cleanup discards the run-scoped working area.
func (r *runner) cleanup(ctx context.Context) {
	if r.tempDir != "" {
		if _, err := os.Stat(r.tempDir); err == nil {
			_ = os.RemoveAll(r.tempDir)
		}
	}

	logger.Info(ctx, "The builder has been stopped")
}

// findDataArchive locates the single staged data archive and returns its name.
func findDataArchive(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "tzdata*"+release.ArchiveSuffix))
	if err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s: %w", dir, errNoDataArchive)
	case 1:
		return filepath.Base(matches[0]), nil
	default:
		return "", fmt.Errorf("%s: %w", dir, errAmbiguousArchive)
	}
}

// listFiles returns the regular files under root, relative and sorted.
func listFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	return files, nil
}

// fileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func fileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}
