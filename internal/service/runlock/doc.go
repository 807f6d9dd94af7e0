// Package runlock serializes pipeline runs sharing a working area.
//
// The core pipeline assumes exclusive ownership of its working area and
// publish target; the marker file acquired here enforces that across
// processes, with recovery for markers left behind by crashed runs.
package runlock
