package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/finnhorsman/ensemble/lib/rsm"
)

// OpType identifies a TTL map command or query. Values are pinned to the ids
// net.kuujo.copycat.collections.DistributedMap registered its commands and
// queries under, so a captured wire byte stream stays meaningful when
// compared against the original source.
type OpType uint16

const (
	OpContainsKey  OpType = 440
	OpPut          OpType = 441
	OpPutIfAbsent  OpType = 442
	OpGet          OpType = 443
	OpGetOrDefault OpType = 444
	OpRemove       OpType = 445
	OpIsEmpty      OpType = 446
	OpSize         OpType = 447
	OpClear        OpType = 448
)

func (t OpType) String() string {
	switch t {
	case OpContainsKey:
		return "ContainsKey"
	case OpPut:
		return "Put"
	case OpPutIfAbsent:
		return "PutIfAbsent"
	case OpGet:
		return "Get"
	case OpGetOrDefault:
		return "GetOrDefault"
	case OpRemove:
		return "Remove"
	case OpIsEmpty:
		return "IsEmpty"
	case OpSize:
		return "Size"
	case OpClear:
		return "Clear"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

// Mutating reports whether the operation must be linearized through the log
// (Put/PutIfAbsent/Remove/Clear), as opposed to being answerable from a
// Query wrapper against already-committed state.
func (t OpType) Mutating() bool {
	switch t {
	case OpPut, OpPutIfAbsent, OpRemove, OpClear:
		return true
	default:
		return false
	}
}

// Op is a single TTL map command or query, in the shape ttlmap.StateMachine
// consumes directly as a Commit's Operation. Fields are reused across op
// types the same way the Java source's Put/PutIfAbsent/Remove commands share
// most of their constructor arguments:
//
//   - Key: every op except IsEmpty/Size/Clear.
//   - Value: Put/PutIfAbsent (the value to store) and Remove (optional
//     value to compare against before removing, see HasCompareValue).
//   - Default: GetOrDefault's fallback.
//   - Mode/TTLMillis: Put/PutIfAbsent only; TTLMillis of 0 means no expiry.
//   - HasCompareValue: Remove only; false means "remove regardless of value"
//     the way DistributedMap.remove(key) differs from remove(key, value).
//   - Consistency: queries only, ignored on commands.
type Op struct {
	Type            OpType
	Key             string
	Value           []byte
	HasCompareValue bool
	Default         []byte
	Mode            rsm.Mode
	TTLMillis       int64
	Consistency     rsm.ConsistencyLevel
}

// SizeBytes returns the exact byte length Serialize will produce.
func (op *Op) SizeBytes() int {
	// Type(2) + Mode(1) + HasCompareValue(1) + Consistency(1) + TTLMillis(8) +
	// KeyLen(4) + Key + ValueLen(4) + Value + DefaultLen(4) + Default
	return 2 + 1 + 1 + 1 + 8 + 4 + len(op.Key) + 4 + len(op.Value) + 4 + len(op.Default)
}

// Serialize encodes op into a flat byte slice.
func (op *Op) Serialize() []byte {
	buf := make([]byte, op.SizeBytes())
	off := 0

	binary.BigEndian.PutUint16(buf[off:], uint16(op.Type))
	off += 2

	buf[off] = byte(op.Mode)
	off++

	if op.HasCompareValue {
		buf[off] = 1
	}
	off++

	buf[off] = byte(op.Consistency)
	off++

	binary.BigEndian.PutUint64(buf[off:], uint64(op.TTLMillis))
	off += 8

	binary.BigEndian.PutUint32(buf[off:], uint32(len(op.Key)))
	off += 4
	off += copy(buf[off:], op.Key)

	binary.BigEndian.PutUint32(buf[off:], uint32(len(op.Value)))
	off += 4
	off += copy(buf[off:], op.Value)

	binary.BigEndian.PutUint32(buf[off:], uint32(len(op.Default)))
	off += 4
	off += copy(buf[off:], op.Default)

	return buf
}

// Deserialize populates op from data produced by Serialize.
func (op *Op) Deserialize(data []byte) error {
	const headerLen = 2 + 1 + 1 + 1 + 8 + 4
	if len(data) < headerLen {
		return fmt.Errorf("ttlmap: op data too short: %d bytes", len(data))
	}

	off := 0
	op.Type = OpType(binary.BigEndian.Uint16(data[off:]))
	off += 2

	op.Mode = rsm.Mode(data[off])
	off++

	op.HasCompareValue = data[off] != 0
	off++

	op.Consistency = rsm.ConsistencyLevel(data[off])
	off++

	op.TTLMillis = int64(binary.BigEndian.Uint64(data[off:]))
	off += 8

	keyLen := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+keyLen+4 {
		return fmt.Errorf("ttlmap: op data too short for key of length %d", keyLen)
	}
	op.Key = string(data[off : off+keyLen])
	off += keyLen

	valueLen := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+valueLen+4 {
		return fmt.Errorf("ttlmap: op data too short for value of length %d", valueLen)
	}
	if valueLen > 0 {
		op.Value = append([]byte(nil), data[off:off+valueLen]...)
	} else {
		op.Value = nil
	}
	off += valueLen

	defaultLen := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+defaultLen {
		return fmt.Errorf("ttlmap: op data too short for default of length %d", defaultLen)
	}
	if defaultLen > 0 {
		op.Default = append([]byte(nil), data[off:off+defaultLen]...)
	} else {
		op.Default = nil
	}

	return nil
}

// Result is the outcome of applying or querying an Op. Only the fields
// relevant to the originating OpType are meaningful: an "Ok + Value" shape
// generalized to the TTL map's return types (bool for ContainsKey/IsEmpty/PutIfAbsent,
// int64 for Size, []byte for Get/GetOrDefault/the previous value on Put).
type Result struct {
	Found bool
	Value []byte
	Size  int64
}
