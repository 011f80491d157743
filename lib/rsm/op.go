package rsm

import "fmt"

// ConsistencyLevel is the consistency a query is willing to accept. Commands
// are always linearized through the log and never carry a level. Ordered so
// that higher values mean stronger guarantees; LinearizableLease is the
// default, matching the original source's ConsistencyLevel.LINEARIZABLE_LEASE.
type ConsistencyLevel uint8

const (
	Serializable ConsistencyLevel = iota
	Causal
	Bounded
	LinearizableLease
	Linearizable
)

func (c ConsistencyLevel) String() string {
	switch c {
	case Serializable:
		return "Serializable"
	case Causal:
		return "Causal"
	case Bounded:
		return "Bounded"
	case LinearizableLease:
		return "LinearizableLease"
	case Linearizable:
		return "Linearizable"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// DefaultConsistency is the level rpc/server serves every TTL map read at,
// since an RPC request carries no consistency level of its own. The
// ttlmap/wire codec always encodes an op's level explicitly.
const DefaultConsistency = LinearizableLease

// Mode selects the persistence policy of a TTL map entry or group member.
type Mode uint8

const (
	Persistent Mode = iota
	Ephemeral
)

func (m Mode) String() string {
	switch m {
	case Persistent:
		return "Persistent"
	case Ephemeral:
		return "Ephemeral"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}
