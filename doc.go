// Package petroedge is the telemetry processing core of the PetroEdge
// platform. It consumes raw telemetry events from JetStream, resolves each
// event's device binding, profiles and digital twin through a cached
// three-tier override hierarchy, selects the governing rule chain, and
// executes the chain's node graph against the event with full execution
// provenance.
//
// The entry point lives in cmd/petroedge; the processing pipeline is
// consumer -> resolver -> engine -> node, with store and pkg/cache
// underneath.
package petroedge
