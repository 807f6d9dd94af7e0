//go:build !windows

package toolchain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRunTool_Success captures combined output of a successful command.
func TestRunTool_Success(t *testing.T) {
	t.Parallel()

	output, err := runTool(context.Background(), 0, "sh", "-c", "echo ok")
	require.NoError(t, err)
	require.Contains(t, output, "ok")
}

// TestRunTool_FailureWrapsToolError maps a non-zero exit to ErrToolFailed.
func TestRunTool_FailureWrapsToolError(t *testing.T) {
	t.Parallel()

	_, err := runTool(context.Background(), 0, "sh", "-c", "exit 3")
	require.ErrorIs(t, err, ErrToolFailed)
}

// TestRunTool_TimeoutAborts kills a hung command once the bound is hit.
func TestRunTool_TimeoutAborts(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := runTool(context.Background(), 50*time.Millisecond, "sh", "-c", "sleep 10")
	require.ErrorIs(t, err, ErrToolFailed)
	require.Less(t, time.Since(start), 5*time.Second)
}
