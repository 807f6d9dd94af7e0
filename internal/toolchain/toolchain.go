package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

var (
	// ErrVerificationFailed is returned when a signature check rejects an archive.
	ErrVerificationFailed = errors.New("signature verification failed")
	// ErrToolFailed is returned when an external compiler or compactor step fails.
	ErrToolFailed = errors.New("external tool failed")
)

// Verifier attests that a downloaded archive is authentic. Verification must
// succeed before anything downstream reads the archive's contents.
type Verifier interface {
	Verify(ctx context.Context, dataFile, signatureFile string) error
}

// ZoneCompiler compiles region rule files into binary zone data.
type ZoneCompiler interface {
	Compile(ctx context.Context, outputDir string, regionFiles []string) error
}

// ZoneCompactor turns compiled zone data plus the setup listing into the
// platform data set.
type ZoneCompactor interface {
	Compact(ctx context.Context, setupFile, compiledDir, zoneTabFile, outputDir, version string) error
}

// DefaultTrustedKey pins the upstream maintainer's signing key.
const DefaultTrustedKey = "ED97E90E62AA7E34"

// GPGVerifier shells out to gpg. Operators missing the key need to import it
// once: gpg --receive-keys <key>.
type GPGVerifier struct {
	// TrustedKey is the key ID passed to gpg; empty means DefaultTrustedKey.
	TrustedKey string
	// Timeout bounds a single gpg invocation.
	Timeout time.Duration
}

// Verify runs gpg --verify against the detached signature.
func (v *GPGVerifier) Verify(ctx context.Context, dataFile, signatureFile string) error {
	key := v.TrustedKey
	if key == "" {
		key = DefaultTrustedKey
	}

	output, err := runTool(ctx, v.Timeout, "gpg",
		"--trusted-key="+key, "--verify", signatureFile, dataFile)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", dataFile, output, ErrVerificationFailed)
	}

	return nil
}

// PatchTool applies patches with patch(1).
type PatchTool struct {
	// Timeout bounds a single patch invocation.
	Timeout time.Duration
}

// Apply runs patch against the target file.
func (t *PatchTool) Apply(ctx context.Context, targetFile, patchFile string) error {
	output, err := runTool(ctx, t.Timeout, "patch", targetFile, patchFile)
	if err != nil {
		return fmt.Errorf("patch %s: %s: %w", targetFile, output, err)
	}

	return nil
}

// ZicCompiler compiles region files with the external zic binary.
type ZicCompiler struct {
	// Command is the zic executable; empty means "zic" from PATH.
	Command string
	// Timeout bounds a single zic invocation.
	Timeout time.Duration
}

// Compile runs zic -d outputDir with the region files in their given order.
// The order matters: later regions' rule content overrides earlier ones.
func (c *ZicCompiler) Compile(ctx context.Context, outputDir string, regionFiles []string) error {
	command := c.Command
	if command == "" {
		command = "zic"
	}

	args := append([]string{"-d", outputDir}, regionFiles...)

	output, err := runTool(ctx, c.Timeout, command, args...)
	if err != nil {
		return fmt.Errorf("zic: %s: %w", output, err)
	}

	return nil
}

// ExecZoneCompactor runs an external compactor executable with the
// conventional argument order: setup file, compiled dir, zone.tab, output
// dir, version token.
type ExecZoneCompactor struct {
	// Command is the compactor executable.
	Command string
	// Timeout bounds a single compactor invocation.
	Timeout time.Duration
}

// Compact invokes the compactor.
func (c *ExecZoneCompactor) Compact(ctx context.Context, setupFile, compiledDir, zoneTabFile, outputDir, version string) error {
	output, err := runTool(ctx, c.Timeout, c.Command,
		setupFile, compiledDir, zoneTabFile, outputDir, version)
	if err != nil {
		return fmt.Errorf("zone compactor: %s: %w", output, err)
	}

	return nil
}

// runTool executes a command under a bounded context and returns its combined
// output. A non-zero exit or a hit timeout wraps ErrToolFailed.
func runTool(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s: %v: %w", name, err, ErrToolFailed)
	}

	return string(output), nil
}
