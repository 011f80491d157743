package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/finnhorsman/ensemble/lib/rsm"
)

// OpType identifies a group command or query.
type OpType uint16

const (
	OpJoin OpType = iota + 1
	OpLeave
	OpListen
	OpSubmit
	OpAck
)

func (t OpType) String() string {
	switch t {
	case OpJoin:
		return "Join"
	case OpLeave:
		return "Leave"
	case OpListen:
		return "Listen"
	case OpSubmit:
		return "Submit"
	case OpAck:
		return "Ack"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

// DispatchPolicy selects how a non-direct Submit picks its target member(s),
// mirroring io.atomix.group.messaging.MessageProducer.DispatchPolicy. It is
// only consulted when Op.MemberID is empty; a direct submit ignores it.
type DispatchPolicy uint8

const (
	DispatchRandom DispatchPolicy = iota
	DispatchBroadcast
)

func (d DispatchPolicy) String() string {
	if d == DispatchBroadcast {
		return "Broadcast"
	}
	return "Random"
}

// DeliveryPolicy selects what happens to a message whose target member
// leaves the group before acknowledging it.
type DeliveryPolicy uint8

const (
	DeliveryOnce DeliveryPolicy = iota
	DeliveryRetry
)

func (d DeliveryPolicy) String() string {
	if d == DeliveryRetry {
		return "Retry"
	}
	return "Once"
}

// Op is a single group command or query, reused across op types the way
// io.atomix.group.internal.GroupCommands' Join/Leave/Submit/Ack operations
// share a common shape:
//
//   - MemberID: Join, Leave and Ack always; Submit when addressing a single
//     member directly (a blank MemberID means non-direct, routed per
//     Dispatch instead).
//   - Mode: Join only, Persistent vs Ephemeral membership.
//   - Dispatch/Delivery: Submit only, ignored on a direct submit.
//   - MessageID: on Submit, the submitter-assigned id that the submitter's
//     ack/fail event echoes back; on Ack, the Index of the message event
//     being settled (the Submit's commit index), not the submitter's id.
//   - MessageType/MessageBody: Submit's payload.
//   - Succeeded: Ack only, true for an application-level ack, false for a
//     processing failure.
type Op struct {
	Type        OpType
	MemberID    string
	Mode        rsm.Mode
	Dispatch    DispatchPolicy
	Delivery    DeliveryPolicy
	MessageID   uint64
	MessageType string
	MessageBody []byte
	Succeeded   bool
}

// SizeBytes returns the exact byte length Serialize will produce.
func (op *Op) SizeBytes() int {
	return 2 + 1 + 1 + 1 + 1 + 8 + 4 + len(op.MemberID) + 4 + len(op.MessageType) + 4 + len(op.MessageBody)
}

// Serialize encodes op into a flat byte slice.
func (op *Op) Serialize() []byte {
	buf := make([]byte, op.SizeBytes())
	off := 0

	binary.BigEndian.PutUint16(buf[off:], uint16(op.Type))
	off += 2

	buf[off] = byte(op.Mode)
	off++
	buf[off] = byte(op.Dispatch)
	off++
	buf[off] = byte(op.Delivery)
	off++
	if op.Succeeded {
		buf[off] = 1
	}
	off++

	binary.BigEndian.PutUint64(buf[off:], op.MessageID)
	off += 8

	binary.BigEndian.PutUint32(buf[off:], uint32(len(op.MemberID)))
	off += 4
	off += copy(buf[off:], op.MemberID)

	binary.BigEndian.PutUint32(buf[off:], uint32(len(op.MessageType)))
	off += 4
	off += copy(buf[off:], op.MessageType)

	binary.BigEndian.PutUint32(buf[off:], uint32(len(op.MessageBody)))
	off += 4
	off += copy(buf[off:], op.MessageBody)

	return buf
}

// Deserialize populates op from data produced by Serialize.
func (op *Op) Deserialize(data []byte) error {
	const headerLen = 2 + 1 + 1 + 1 + 1 + 8 + 4
	if len(data) < headerLen {
		return fmt.Errorf("group: op data too short: %d bytes", len(data))
	}

	off := 0
	op.Type = OpType(binary.BigEndian.Uint16(data[off:]))
	off += 2

	op.Mode = rsm.Mode(data[off])
	off++
	op.Dispatch = DispatchPolicy(data[off])
	off++
	op.Delivery = DeliveryPolicy(data[off])
	off++
	op.Succeeded = data[off] != 0
	off++

	op.MessageID = binary.BigEndian.Uint64(data[off:])
	off += 8

	memberLen := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+memberLen+4 {
		return fmt.Errorf("group: op data too short for member id of length %d", memberLen)
	}
	op.MemberID = string(data[off : off+memberLen])
	off += memberLen

	typeLen := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+typeLen+4 {
		return fmt.Errorf("group: op data too short for message type of length %d", typeLen)
	}
	op.MessageType = string(data[off : off+typeLen])
	off += typeLen

	bodyLen := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+bodyLen {
		return fmt.Errorf("group: op data too short for message body of length %d", bodyLen)
	}
	if bodyLen > 0 {
		op.MessageBody = append([]byte(nil), data[off:off+bodyLen]...)
	} else {
		op.MessageBody = nil
	}

	return nil
}
