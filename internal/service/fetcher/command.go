package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/tzdata-packager/internal/config"
	"github.com/oshokin/tzdata-packager/internal/logger"
	"github.com/oshokin/tzdata-packager/internal/release"
	"github.com/oshokin/tzdata-packager/internal/service/runlock"
	"github.com/oshokin/tzdata-packager/internal/toolchain"
)

// SignatureSuffix is appended to an archive name to get its detached signature.
const SignatureSuffix = ".asc"

var (
	errNothingToDo   = errors.New("nothing to do: select at least one artifact class")
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Options contains inputs for the fetcher entry point.
type Options struct {
	// ConfigPath is an optional path to the pipeline settings (defaults to settings.yaml).
	ConfigPath string
	// Tools requests a refresh of the tooling archives (tzdata + tzcode).
	Tools bool
	// Data requests a refresh of the data archive.
	Data bool
	// ReleaseVersion pins an exact upstream release instead of the latest.
	ReleaseVersion string
}

// artifactClass groups the release prefixes staged into one input directory.
// The tooling class duplicates the tzdata archive on purpose: tool and data
// updates stay independent, and the zic build needs the data tar's contents.
type artifactClass struct {
	name     string
	prefixes []string
	dir      string
}

// runner holds the state for a single fetch execution.
// It is unexported; callers should use Run, which encapsulates setup and cleanup.
type runner struct {
	cfg      *config.Config
	pin      string
	classes  []artifactClass
	verifier toolchain.Verifier
	client   *http.Client
	tempDir  string
	updated  []string
}

// Run executes the fetch stage: list the mirror, select a release per
// artifact class, download and verify it, and stage it into the class input
// directory. Classes that are already current are skipped without any write.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tzdata-fetcher")

	if !opts.Tools && !opts.Data {
		return errNothingToDo
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	unlock, err := runlock.Acquire(ctx, ".")
	if err != nil {
		return err
	}

	defer unlock()

	r, err := newRunner(cfg, opts)
	if err != nil {
		return fmt.Errorf("initialize fetcher: %w", err)
	}

	defer r.cleanup(ctx)

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Fetch stage failed", "error", err)
		return err
	}

	logger.Info(ctx, "Fetcher completed successfully")

	return nil
}

// newRunner prepares the run-scoped working area and the artifact classes.
func newRunner(cfg *config.Config, opts *Options) (*runner, error) {
	tempDir, err := os.MkdirTemp("", "tzdata-fetcher-")
	if err != nil {
		return nil, err
	}

	r := &runner{
		cfg:      cfg,
		pin:      opts.ReleaseVersion,
		verifier: &toolchain.GPGVerifier{Timeout: cfg.ToolTimeout},
		client:   &http.Client{Timeout: cfg.NetworkTimeout},
		tempDir:  tempDir,
	}

	if opts.Tools {
		r.classes = append(r.classes, artifactClass{
			name:     "tools",
			prefixes: []string{"tzdata20", "tzcode20"},
			dir:      cfg.ToolsInputDir,
		})
	}

	if opts.Data {
		r.classes = append(r.classes, artifactClass{
			name:     "data",
			prefixes: []string{"tzdata20"},
			dir:      cfg.DataInputDir,
		})
	}

	return r, nil
}

// Run walks every requested artifact class against one remote listing.
func (r *runner) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Looking for new upstream files", "mirror", r.cfg.MirrorURL)

	listing, err := r.fetchListing(ctx)
	if err != nil {
		return fmt.Errorf("list remote releases: %w", err)
	}

	for _, class := range r.classes {
		for _, prefix := range class.prefixes {
			if err = r.refreshArtifact(ctx, listing, class, prefix); err != nil {
				return fmt.Errorf("refresh %s artifact %s: %w", class.name, prefix, err)
			}
		}
	}

	r.report(ctx)

	return nil
}

// refreshArtifact brings one prefix of one class up to date.
func (r *runner) refreshArtifact(ctx context.Context, listing []string, class artifactClass, prefix string) error {
	candidates, err := release.ListCandidates(listing, prefix)
	if err != nil {
		return err
	}

	selected, err := release.SelectRelease(candidates, prefix, r.pin)
	if err != nil {
		return err
	}

	local, err := findLocalArchive(class.dir, prefix)
	if err != nil {
		return err
	}

	if !release.IsNewer(selected, local) {
		logger.InfoKV(ctx, "Local archive is current",
			"class", class.name, "local", local, "remote", selected)

		return nil
	}

	logger.InfoKV(ctx, "Found new upstream file",
		"class", class.name, "archive", selected)

	archivePath, err := r.download(ctx, selected)
	if err != nil {
		return err
	}

	signaturePath, err := r.download(ctx, selected+SignatureSuffix)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Verifying signature", "archive", selected)

	if err = r.verifier.Verify(ctx, archivePath, signaturePath); err != nil {
		return err
	}

	return r.stage(ctx, class, selected, local, archivePath, signaturePath)
}

// fetchListing downloads the flat remote name listing.
func (r *runner) fetchListing(ctx context.Context) ([]string, error) {
	response, err := r.getFileBodyFromMirror(ctx, "")
	if response != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}

	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	var listing []string

	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			listing = append(listing, line)
		}
	}

	return listing, nil
}

// download fetches one remote file into the run-scoped temp dir.
func (r *runner) download(ctx context.Context, fileName string) (string, error) {
	logger.InfoKV(ctx, "Downloading file", "name", fileName)

	response, err := r.getFileBodyFromMirror(ctx, fileName)
	if response != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}

	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(r.tempDir, fileName)

	outputFile, err := os.Create(filepath.Clean(outputPath))
	if err != nil {
		return "", err
	}

	if _, err = io.Copy(outputFile, response.Body); err != nil {
		_ = outputFile.Close()

		return "", err
	}

	return outputPath, outputFile.Close()
}

// getFileBodyFromMirror issues a GET against the mirror base URL plus fileName.
func (r *runner) getFileBodyFromMirror(ctx context.Context, fileName string) (*http.Response, error) {
	mirrorURL, err := url.Parse(r.cfg.MirrorURL)
	if err != nil {
		return nil, err
	}

	if fileName != "" {
		// Use path.Join to normalize duplicate slashes when composing the URL path.
		mirrorURL.Path = path.Join(mirrorURL.Path, fileName)
	}

	finalURL := mirrorURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := r.client.Do(req)
	if err != nil {
		return response, err
	}

	if response.StatusCode != http.StatusOK {
		return response, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// stage moves the verified archive and signature into the class input dir and
// removes the superseded pair. Each file lands via rename so an interruption
// never leaves a torn archive next to a valid signature.
func (r *runner) stage(ctx context.Context, class artifactClass, selected, local, archivePath, signaturePath string) error {
	if err := os.MkdirAll(class.dir, 0o755); err != nil {
		return err
	}

	if err := moveIntoDir(archivePath, filepath.Join(class.dir, selected)); err != nil {
		return err
	}

	if err := moveIntoDir(signaturePath, filepath.Join(class.dir, selected+SignatureSuffix)); err != nil {
		return err
	}

	if local != "" && local != selected {
		_ = os.Remove(filepath.Join(class.dir, local))
		_ = os.Remove(filepath.Join(class.dir, local+SignatureSuffix))
	}

	r.updated = append(r.updated,
		filepath.Join(class.dir, selected),
		filepath.Join(class.dir, selected+SignatureSuffix))

	logger.InfoKV(ctx, "Staged new archive", "class", class.name, "archive", selected)

	return nil
}

// report logs either the updated files or the no-op outcome.
func (r *runner) report(ctx context.Context) {
	if len(r.updated) == 0 {
		logger.Info(ctx, "Already up to date, no files changed")
		return
	}

	sort.Strings(r.updated)

	for _, name := range r.updated {
		logger.InfoKV(ctx, "New file", "path", name)
	}
}

// cleanup discards the run-scoped working area.
func (r *runner) cleanup(ctx context.Context) {
	if r.tempDir != "" {
		if _, err := os.Stat(r.tempDir); err == nil {
			_ = os.RemoveAll(r.tempDir)
		}
	}

	logger.Info(ctx, "The fetcher has been stopped")
}

// moveIntoDir copies srcPath to a temporary name beside destPath and renames
// it into place. The run temp dir may sit on another filesystem, so a plain
// rename from it is not an option.
func moveIntoDir(srcPath, destPath string) error {
	src, err := os.Open(filepath.Clean(srcPath))
	if err != nil {
		return err
	}

	defer func() {
		_ = src.Close()
	}()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return err
	}

	if _, err = io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), destPath)
}

// findLocalArchive returns the staged archive name for a prefix, or "" when
// nothing is staged yet. With several matches the lexically maximal one is
// the baseline.
func findLocalArchive(dir, prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*"+release.ArchiveSuffix))
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		return "", nil
	}

	sort.Strings(matches)

	return filepath.Base(matches[len(matches)-1]), nil
}
