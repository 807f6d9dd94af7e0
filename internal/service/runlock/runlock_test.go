package runlock

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcquire_Exclusive makes sure a held marker blocks a second acquisition
// until released.
func TestAcquire_Exclusive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	release, err := Acquire(ctx, dir)
	require.NoError(t, err)

	_, err = Acquire(ctx, dir)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	release()

	release, err = Acquire(ctx, dir)
	require.NoError(t, err)

	release()

	_, err = os.Stat(filepath.Join(dir, MarkerFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
}
