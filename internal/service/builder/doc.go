// Package builder implements the build stage of the pipeline: it patches the
// staged data archive, compiles the rule files, resolves the canonical zone
// set, runs the zone compactor and publishes the result.
//
// Every stage before publish writes only into a run-scoped temporary
// directory. Publish is the single step allowed to mutate previously
// published state, and each file lands through a checksum-verified atomic
// replacement, so a failed run leaves the published artifacts untouched.
package builder
