package group

import "github.com/finnhorsman/ensemble/lib/rsm/group/wire"

// MemberMessage is delivered to a member's owning session when a message is
// dispatched to it, mirroring io.atomix.group.messaging.wire.GroupMessage.
type MemberMessage struct {
	Index    uint64
	MemberID string
	Type     string
	Body     []byte
}

// AckInfo is delivered back to a message's submitter once it settles,
// carrying enough of the original Submit to let the caller match it to an
// outstanding future.
type AckInfo struct {
	MessageID   uint64
	MemberID    string
	MessageType string
}

// EventPublisher is the per-session facade StateMachine pushes events
// through. StateMachine consults its own session registry before every
// Join/Leave/Term/Elect/Resign/Message call, so those never reach an
// inactive session; Ack and Fail go to the submitting session without that
// check, so an implementation can receive them for a session that has
// already closed.
//
// This mirrors GroupState's private GroupSession helper class, generalized
// into an interface so the real delivery mechanism (a dragonboat client
// session publish, or a recording fake in tests) is a concern of
// lib/rsm/dragonboat and lib/rsm/rsmtest, not of StateMachine itself.
type EventPublisher interface {
	Join(sessionID uint64, member wire.MemberInfo)
	Leave(sessionID uint64, memberID string)
	Term(sessionID uint64, term uint64)
	Elect(sessionID uint64, memberID string)
	Resign(sessionID uint64, memberID string)
	Message(sessionID uint64, msg MemberMessage)
	Ack(sessionID uint64, ack AckInfo)
	Fail(sessionID uint64, fail AckInfo)
}
