// Package toolchain abstracts the external tools the pipeline depends on
// (gpg, patch, zic, the zone compactor) as injectable capability interfaces,
// so the pipeline can be tested deterministically against fakes.
//
// Every exec-backed implementation bounds its invocation with a context
// timeout; a timeout or cancellation aborts the pipeline run.
package toolchain
