// Package dragonboat adapts lib/rsm/ttlmap and lib/rsm/group onto
// github.com/lni/dragonboat/v4's sm.IConcurrentStateMachine. It is the
// only package in this module that knows
// dragonboat exists: both state machines are written entirely against
// lib/rsm.Substrate and never import this package, so they stay testable
// without a cluster (see lib/rsm/rsmtest).
//
// dragonboat gives a concurrent state machine no native concept of a
// client session publishing events to itself the way Copycat/Atomix's
// ServerSession.publish does - Update and Lookup see raw command bytes and
// an index, nothing more. This package bridges that gap two ways:
//
//   - Session lifecycle (register/expire/close) is modeled as reserved
//     entries in the same replicated log as ordinary commands, decoded
//     here and delivered to each state machine's rsm.SessionListener
//     methods before the entry's ordinary payload (if any) is applied.
//   - Outbound group events (join/leave/message/ack/...) are queued per
//     session in eventQueue rather than pushed synchronously, since
//     nothing below the RPC layer can interrupt a client connection the
//     way a Copycat session publish could; rpc/server is expected to drain
//     a session's queue on its next round trip.
package dragonboat
