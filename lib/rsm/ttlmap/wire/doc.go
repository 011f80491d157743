// Package wire defines the wire format for the TTL map's commands and
// queries: a set of operation structs plus Serialize/Deserialize pairs in a
// fixed-layout binary style. It is a plain (non-internal) package:
// lib/rsm/dragonboat and lib/rsm/rsmtest sit outside the lib/rsm/ttlmap
// tree and both need to decode this format too.
//
// Operation IDs are pinned to the values the original source
// (net.kuujo.copycat.collections.DistributedMap) registered them under, so
// they double as a stable 2-byte opcode on the wire.
package wire
