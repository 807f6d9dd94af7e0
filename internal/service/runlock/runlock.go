package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/tzdata-packager/internal/logger"
)

// MarkerFilename marks that a pipeline run is in progress to avoid parallel
// execution against the same working area and publish target.
const MarkerFilename = "tzdata-packager-run-marker.bin"

// markerLifetime is the period after which a leftover marker is considered
// stale and recovery is attempted.
const markerLifetime = 30 * time.Minute

// ErrAlreadyRunning is returned when another pipeline run holds the marker.
var ErrAlreadyRunning = errors.New("another pipeline run is already in progress")

// pipelineExecutables are the binaries a stale marker may belong to.
var pipelineExecutables = []string{"tzdata-fetcher", "tzdata-builder"}

// Acquire takes the run marker in dir and returns a release function. A fresh
// marker from another run fails with ErrAlreadyRunning; a stale one is
// recovered by killing any leftover pipeline process and removing the file.
func Acquire(ctx context.Context, dir string) (func(), error) {
	markerPath := filepath.Join(dir, MarkerFilename)

	if isRunActive(ctx, markerPath) {
		return nil, fmt.Errorf("%s: %w", markerPath, ErrAlreadyRunning)
	}

	marker, err := os.Create(filepath.Clean(markerPath))
	if err != nil {
		return nil, fmt.Errorf("create run marker: %w", err)
	}

	if err = marker.Close(); err != nil {
		return nil, err
	}

	release := func() {
		if _, err := os.Stat(markerPath); err == nil {
			_ = os.Remove(markerPath)
		}
	}

	return release, nil
}

// isRunActive checks presence of the marker and attempts recovery if it looks stale.
func isRunActive(ctx context.Context, markerPath string) bool {
	fileInfo, err := os.Stat(markerPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Infof(ctx, "Unable to read run marker: %v", err)
		}

		return false
	}

	if time.Since(fileInfo.ModTime()) <= markerLifetime {
		return true
	}

	logger.Info(ctx, "The run marker is too old, attempting cleanup")

	for _, executable := range pipelineExecutables {
		if err = terminateProcessByName(executable); err != nil {
			return true
		}
	}

	return os.Remove(markerPath) != nil
}

// terminateProcessByName tries to kill processes with the provided executable name.
func terminateProcessByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}
