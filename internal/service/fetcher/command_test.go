package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tzdata-packager/internal/config"
	"github.com/oshokin/tzdata-packager/internal/release"
)

// fakeVerifier counts verifications and optionally rejects everything.
type fakeVerifier struct {
	calls int
	fail  bool
}

func (v *fakeVerifier) Verify(_ context.Context, _, _ string) error {
	v.calls++
	if v.fail {
		return errors.New("bad signature")
	}

	return nil
}

// startMirror serves a flat listing at / and file contents by name.
func startMirror(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/" {
			for name := range files {
				_, _ = w.Write([]byte(name + "\n"))
			}

			return
		}

		contents, ok := files[req.URL.Path[1:]]
		if !ok {
			http.NotFound(w, req)
			return
		}

		_, _ = w.Write([]byte(contents))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// newTestRunner wires a runner against the test mirror with a fake verifier.
func newTestRunner(t *testing.T, mirrorURL, dataDir, pin string, verifier *fakeVerifier) *runner {
	t.Helper()

	cfg := &config.Config{
		MirrorURL:      mirrorURL,
		DataInputDir:   dataDir,
		NetworkTimeout: 5 * time.Second,
	}

	return &runner{
		cfg:      cfg,
		pin:      pin,
		verifier: verifier,
		client:   &http.Client{Timeout: cfg.NetworkTimeout},
		tempDir:  t.TempDir(),
		classes: []artifactClass{{
			name:     "data",
			prefixes: []string{"tzdata20"},
			dir:      dataDir,
		}},
	}
}

// TestRun_StagesLatestRelease fetches, verifies and stages the newest archive
// with its signature, replacing the superseded pair.
func TestRun_StagesLatestRelease(t *testing.T) {
	t.Parallel()

	server := startMirror(t, map[string]string{
		"tzdata2023a.tar.gz":     "old bytes",
		"tzdata2023b.tar.gz":     "new bytes",
		"tzdata2023b.tar.gz.asc": "sig",
	})

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "tzdata2023a.tar.gz"), []byte("old bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "tzdata2023a.tar.gz.asc"), []byte("old sig"), 0o644))

	verifier := &fakeVerifier{}
	r := newTestRunner(t, server.URL, dataDir, "", verifier)

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, 1, verifier.calls)

	contents, err := os.ReadFile(filepath.Join(dataDir, "tzdata2023b.tar.gz"))
	require.NoError(t, err)
	require.Equal(t, "new bytes", string(contents))

	_, err = os.Stat(filepath.Join(dataDir, "tzdata2023b.tar.gz.asc"))
	require.NoError(t, err)

	// The superseded pair is gone.
	_, err = os.Stat(filepath.Join(dataDir, "tzdata2023a.tar.gz"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dataDir, "tzdata2023a.tar.gz.asc"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_AlreadyCurrentWritesNothing covers the no-op outcome: when the
// staged archive is current, the input dir is untouched.
func TestRun_AlreadyCurrentWritesNothing(t *testing.T) {
	t.Parallel()

	server := startMirror(t, map[string]string{
		"tzdata2023a.tar.gz": "old bytes",
		"tzdata2023b.tar.gz": "new bytes",
	})

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "tzdata2023b.tar.gz"), []byte("new bytes"), 0o644))

	verifier := &fakeVerifier{}
	r := newTestRunner(t, server.URL, dataDir, "", verifier)

	require.NoError(t, r.Run(context.Background()))
	require.Zero(t, verifier.calls)
	require.Empty(t, r.updated)

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestRun_VerificationFailureAbortsStaging leaves the input dir untouched when
// the signature check rejects the download.
func TestRun_VerificationFailureAbortsStaging(t *testing.T) {
	t.Parallel()

	server := startMirror(t, map[string]string{
		"tzdata2023b.tar.gz":     "new bytes",
		"tzdata2023b.tar.gz.asc": "sig",
	})

	dataDir := t.TempDir()
	verifier := &fakeVerifier{fail: true}
	r := newTestRunner(t, server.URL, dataDir, "", verifier)

	require.Error(t, r.Run(context.Background()))

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestRun_PinnedReleaseAbsent refuses to substitute the latest release.
func TestRun_PinnedReleaseAbsent(t *testing.T) {
	t.Parallel()

	server := startMirror(t, map[string]string{
		"tzdata2023a.tar.gz": "bytes",
		"tzdata2023d.tar.gz": "bytes",
	})

	r := newTestRunner(t, server.URL, t.TempDir(), "2023c", &fakeVerifier{})

	err := r.Run(context.Background())
	require.ErrorIs(t, err, release.ErrReleaseNotFound)
	require.ErrorContains(t, err, "tzdata2023c.tar.gz")
}

// TestRun_RequiresArtifactClass rejects an invocation selecting nothing.
func TestRun_RequiresArtifactClass(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{})
	require.ErrorIs(t, err, errNothingToDo)
}
