package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the locations and limits shared by the pipeline binaries.
// It is constructed once by a command entry point and passed by parameter;
// no component reads ambient environment state.
type Config struct {
	// MirrorURL is the base URL of the upstream release mirror.
	MirrorURL string `yaml:"mirror_url"`
	// ToolsInputDir stores the verified tooling archives (tzdata + tzcode).
	ToolsInputDir string `yaml:"tools_input_dir"`
	// DataInputDir stores the verified data archive consumed by the builder.
	DataInputDir string `yaml:"data_input_dir"`
	// PatchesDir holds local patches applied to the data archive before compilation.
	PatchesDir string `yaml:"patches_dir"`
	// PublishDir is the published output location, mutated only by a successful publish.
	PublishDir string `yaml:"publish_dir"`
	// Regions overrides the region processing order; empty means the default order.
	Regions []string `yaml:"regions,omitempty"`
	// ZicCommand is the external rule compiler executable.
	ZicCommand string `yaml:"zic_command"`
	// CompactorCommand is the external zone compactor executable.
	CompactorCommand string `yaml:"compactor_command"`
	// NetworkTimeout bounds every remote listing and download request.
	NetworkTimeout time.Duration `yaml:"network_timeout"`
	// ToolTimeout bounds every external tool invocation (gpg, patch, zic, compactor).
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

const (
	// DefaultConfigFilename is the default filename for pipeline settings.
	DefaultConfigFilename = "tzdata-packager-settings.yaml"

	// DefaultMirrorURL points at the upstream release area.
	DefaultMirrorURL = "https://data.iana.org/time-zones/releases"

	// DefaultNetworkTimeout is the default bound for network operations.
	DefaultNetworkTimeout = 2 * time.Minute

	// DefaultToolTimeout is the default bound for external tool invocations.
	DefaultToolTimeout = 10 * time.Minute

	// DefaultFilePermissions is the default file permission for settings files.
	DefaultFilePermissions = 0o600

	defaultToolsInputDir    = "input/tools"
	defaultDataInputDir     = "input/data"
	defaultPatchesDir       = "input/patches"
	defaultPublishDir       = "output"
	defaultZicCommand       = "zic"
	defaultCompactorCommand = "zone-compactor"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errMirrorRequired is returned when the mirror URL is missing.
	errMirrorRequired = errors.New("mirror URL must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
// A missing file yields defaults so a fresh checkout works without setup.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}

		cfg.MirrorURL = DefaultMirrorURL
	} else if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaults for omitted ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.MirrorURL == "" {
		return errMirrorRequired
	}

	if _, err := url.ParseRequestURI(cfg.MirrorURL); err != nil {
		return fmt.Errorf("invalid mirror URL: %w", err)
	}

	if cfg.ToolsInputDir == "" {
		cfg.ToolsInputDir = defaultToolsInputDir
	}

	if cfg.DataInputDir == "" {
		cfg.DataInputDir = defaultDataInputDir
	}

	if cfg.PatchesDir == "" {
		cfg.PatchesDir = defaultPatchesDir
	}

	if cfg.PublishDir == "" {
		cfg.PublishDir = defaultPublishDir
	}

	if cfg.ZicCommand == "" {
		cfg.ZicCommand = defaultZicCommand
	}

	if cfg.CompactorCommand == "" {
		cfg.CompactorCommand = defaultCompactorCommand
	}

	if cfg.NetworkTimeout <= 0 {
		cfg.NetworkTimeout = DefaultNetworkTimeout
	}

	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}

	return nil
}
