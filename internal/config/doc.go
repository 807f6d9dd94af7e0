// Package config defines pipeline settings used by the binaries and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds the mirror URL, input/output directories and the
// timeouts applied to network and external-tool calls.
package config
