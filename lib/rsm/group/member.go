package group

import "github.com/finnhorsman/ensemble/lib/rsm/group/wire"

// member is a single registered group member, grounded on GroupState's
// private Member class. Unlike the TTL map, a member's identity does not
// need to be re-derived from a retained Commit on every access: once
// joined, membership persists in this struct until an explicit Leave or a
// session close removes it, so there is nothing to lazily re-evaluate.
type member struct {
	index      uint64
	id         string
	persistent bool
	sessionID  uint64
	hasSession bool

	current *message
	pending []*message
}

func (m *member) info() wire.MemberInfo {
	return wire.MemberInfo{Index: m.index, MemberID: m.id}
}

// message is a single in-flight or queued group message, grounded on
// GroupState's private Message class.
type message struct {
	id        uint64
	index     uint64
	msgType   string
	body      []byte
	memberID  string // empty for a non-direct submit
	dispatch  wire.DispatchPolicy
	delivery  wire.DeliveryPolicy
	sessionID uint64 // the submitting session, acked/failed back to it
}

func (m *message) direct() bool { return m.memberID != "" }

func (m *message) ackInfo() AckInfo {
	return AckInfo{MessageID: m.id, MemberID: m.memberID, MessageType: m.msgType}
}

func removeMember(list []*member, target *member) []*member {
	for i, m := range list {
		if m == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
