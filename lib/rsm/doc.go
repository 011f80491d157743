// Package rsm provides the shared envelope consumed by ensemble's replicated
// state machines (the TTL map in lib/rsm/ttlmap and the group coordinator in
// lib/rsm/group): a totally-ordered Commit, a per-instance Session registry,
// consistency levels for queries, and the Substrate boundary that hides the
// underlying Raft engine.
//
// A state machine built on this package never touches a wall clock, a
// goroutine, or a lock across handler boundaries: every Commit is applied to
// completion before the next is delivered, and the only timing primitive is
// Substrate.Schedule, which is a logical, replay-safe callback expressed in
// terms of the substrate's own clock (see lib/rsm/substrate.go).
package rsm
