// Package wire defines the wire format for group commands and queries
// (Join, Leave, Listen, Submit, Ack), in the same fixed-layout binary style
// as github.com/finnhorsman/ensemble/lib/rsm/ttlmap/wire. It is a plain
// (non-internal) package because lib/rsm/dragonboat and lib/rsm/rsmtest,
// outside the lib/rsm/group tree, both need to decode it too.
//
// Unlike the TTL map's opcodes, the original source
// (io.atomix.group.internal.GroupCommands) serialized commands by Java class
// rather than a stable integer id, so these opcodes are assigned fresh here.
package wire
