package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLoad_MissingFileYieldsDefaults ensures a fresh checkout works without a settings file.
func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultMirrorURL, cfg.MirrorURL)
	require.Equal(t, defaultDataInputDir, cfg.DataInputDir)
	require.Equal(t, defaultPublishDir, cfg.PublishDir)
	require.Equal(t, DefaultNetworkTimeout, cfg.NetworkTimeout)
	require.Equal(t, DefaultToolTimeout, cfg.ToolTimeout)
}

// TestSaveLoad_Roundtrip ensures Save followed by Load returns equal settings.
func TestSaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	want := &Config{
		MirrorURL:        "https://mirror.example.org/releases",
		ToolsInputDir:    "custom/tools",
		DataInputDir:     "custom/data",
		PatchesDir:       "custom/patches",
		PublishDir:       "custom/out",
		Regions:          []string{"africa", "backward"},
		ZicCommand:       "/usr/sbin/zic",
		CompactorCommand: "compact-zones",
		NetworkTimeout:   30 * time.Second,
		ToolTimeout:      time.Minute,
	}

	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())
}

// TestValidate_RejectsBadMirror covers the required-field and URL checks.
func TestValidate_RejectsBadMirror(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(&Config{}))
	require.Error(t, Validate(&Config{MirrorURL: "not a url"}))
	require.Error(t, Validate(nil))
}
